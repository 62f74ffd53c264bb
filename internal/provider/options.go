package provider

import (
	"encoding/base64"
	"strings"

	"github.com/google/uuid"
)

// syncPrefix marks handles issued for synchronous submissions.
const syncPrefix = "sync-"

func newSyncTaskID() string {
	return syncPrefix + uuid.NewString()
}

func isSyncTaskID(id string) bool {
	return strings.HasPrefix(id, syncPrefix)
}

// imageSize derives a pixel size from the aspect ratio when no size is given.
func imageSize(o Options) string {
	if o.Size != "" {
		return o.Size
	}
	switch o.AspectRatio {
	case "":
		return ""
	case "16:9", "3:2", "4:3":
		return "1536x1024"
	case "9:16", "2:3", "3:4":
		return "1024x1536"
	default:
		return "1024x1024"
	}
}

func videoSize(o Options) string {
	if o.Size != "" {
		return o.Size
	}
	switch o.AspectRatio {
	case "":
		return ""
	case "9:16":
		return "720x1280"
	case "1:1":
		return "960x960"
	default:
		return "1280x720"
	}
}

// inlineReference returns the reference as base64 bytes, decoding a data URI if
// needed. ok is false when only a remote URL is available.
func inlineReference(r *ReferenceAsset) (mime, data string, ok bool) {
	if r == nil {
		return "", "", false
	}
	if len(r.Data) > 0 {
		mime = r.MIMEType
		if mime == "" {
			mime = "image/png"
		}
		return mime, base64.StdEncoding.EncodeToString(r.Data), true
	}
	return splitDataURI(r.URL)
}

// splitDataURI splits "data:<mime>;base64,<data>".
func splitDataURI(uri string) (mime, data string, ok bool) {
	rest, found := strings.CutPrefix(uri, "data:")
	if !found {
		return "", "", false
	}
	meta, payload, found := strings.Cut(rest, ",")
	if !found {
		return "", "", false
	}
	mime, isBase64 := strings.CutSuffix(meta, ";base64")
	if !isBase64 {
		return "", "", false
	}
	return mime, payload, true
}

func dataURI(mime, b64 string) string {
	if mime == "" {
		mime = "image/png"
	}
	return "data:" + mime + ";base64," + b64
}
