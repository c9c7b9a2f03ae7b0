package source

import (
	"encoding/json"
	"encoding/xml"
	"mime"
	"path/filepath"
	"strings"
	"sync"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Decoder unmarshals data into v.
type Decoder func(data []byte, v any) error

var (
	decodersMu sync.RWMutex
	decoders   = map[string]Decoder{
		"application/json":   json.Unmarshal,
		"application/yaml":   yaml.Unmarshal,
		"application/x-yaml": yaml.Unmarshal,
		"text/yaml":          yaml.Unmarshal,
		// There is no registered media type for TOML.
		"application/toml": toml.Unmarshal,
		"application/xml":  xml.Unmarshal,
		"text/xml":         xml.Unmarshal,
	}

	// structured syntax suffixes, RFC 6839
	suffixes = map[string]string{
		"+json": "application/json",
		"+xml":  "application/xml",
		"+yaml": "application/yaml",
	}

	extensions = map[string]string{
		".json": "application/json",
		".yaml": "application/yaml",
		".yml":  "application/yaml",
		".toml": "application/toml",
		".xml":  "application/xml",
	}
)

// RegisterDecoder adds or replaces the decoder for a media type.
func RegisterDecoder(mediaType string, d Decoder) {
	decodersMu.Lock()
	defer decodersMu.Unlock()
	decoders[strings.ToLower(mediaType)] = d
}

// Decode unmarshals data according to a Content-Type value.
func Decode[T any](contentType string, data []byte) (T, error) {
	var value T
	d, err := decoderFor(contentType)
	if err != nil {
		return value, err
	}
	if err := d(data, &value); err != nil {
		return value, &ContentParseError{ContentType: contentType, Err: err}
	}
	return value, nil
}

func decoderFor(contentType string) (Decoder, error) {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return nil, &HeaderParseError{Header: headerContentType, Value: contentType, Err: err}
	}

	decodersMu.RLock()
	defer decodersMu.RUnlock()
	if d, ok := decoders[mediaType]; ok {
		return d, nil
	}
	for suffix, base := range suffixes {
		if strings.HasSuffix(mediaType, suffix) {
			if d, ok := decoders[base]; ok {
				return d, nil
			}
		}
	}
	return nil, &UnsupportedContentTypeError{ContentType: mediaType}
}

// contentTypeForPath guesses a media type from a file extension.
func contentTypeForPath(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	if ct, ok := extensions[ext]; ok {
		return ct
	}
	return mime.TypeByExtension(ext)
}
