package util

import (
	"bytes"
	"encoding/base64"
	"net/http"
	"strings"
)

var (
	sigJPEG = []byte{0xFF, 0xD8}
	sigPNG  = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1A, '\n'}
)

// SniffImageMIME определяет тип снимка по сигнатуре: jpeg, png, webp.
// Остальное отдаём http.DetectContentType.
func SniffImageMIME(b []byte) string {
	switch {
	case bytes.HasPrefix(b, sigJPEG):
		return "image/jpeg"
	case bytes.HasPrefix(b, sigPNG):
		return "image/png"
	case len(b) >= 12 && string(b[:4]) == "RIFF" && string(b[8:12]) == "WEBP":
		return "image/webp"
	case len(b) == 0:
		return "application/octet-stream"
	}
	mime, _, _ := strings.Cut(http.DetectContentType(b), ";")
	return mime
}

// OCRMimeType — значение mimeType для Yandex Vision: "JPEG" или "PNG".
// Пустая строка — формат сервис не примет, нужен перекод.
func OCRMimeType(b []byte) string {
	switch SniffImageMIME(b) {
	case "image/jpeg":
		return "JPEG"
	case "image/png":
		return "PNG"
	}
	return ""
}

// ImageExt — расширение файла для MIME снимка.
func ImageExt(mime string) string {
	switch mime {
	case "image/jpeg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/webp":
		return ".webp"
	}
	return ".bin"
}

func MakeDataURL(mime, b64 string) string {
	return "data:" + mime + ";base64," + b64
}

// DecodeBase64MaybeDataURL декодирует base64 или data:URI; для data:URI отдаёт и MIME.
func DecodeBase64MaybeDataURL(s string) ([]byte, string, error) {
	s = strings.TrimSpace(s)
	var hint string
	if rest, ok := strings.CutPrefix(s, "data:"); ok {
		if meta, payload, found := strings.Cut(rest, ","); found {
			hint, _, _ = strings.Cut(meta, ";")
			s = payload
		}
	}
	b, err := base64.StdEncoding.DecodeString(s)
	if err == nil {
		return b, hint, nil
	}
	// url-safe вариант
	if b2, err2 := base64.URLEncoding.DecodeString(s); err2 == nil {
		return b2, hint, nil
	}
	return nil, "", err
}

// PickMIME: явный MIME, затем подсказка из data:URI, затем сигнатура.
func PickMIME(explicit, hint string, data []byte) string {
	for _, m := range []string{explicit, hint} {
		if m = strings.TrimSpace(m); m != "" {
			return m
		}
	}
	if len(data) == 0 {
		return "image/jpeg"
	}
	return SniffImageMIME(data)
}
