package codec

import (
	"encoding/base64"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/klauspost/compress/zstd"
)

// Codec is a reversible text transform applied to records on their way to and
// from the backup store. Encode output never contains a newline, so one encoded
// blob is always exactly one backup record.
type Codec interface {
	Name() string
	Encode(text string) string
	Decode(text string) (string, error)
}

// Default is the codec used when none is configured.
const Default = "rot13"

var ErrUnknownCodec = errors.New("unknown codec")

var (
	mu       sync.RWMutex
	registry = map[string]Codec{
		"rot13":  ROT13{},
		"base64": Base64{},
		"zstd":   &Zstd{},
	}
)

// Register adds or replaces a codec under c.Name().
func Register(c Codec) {
	mu.Lock()
	defer mu.Unlock()
	registry[c.Name()] = c
}

// ByName returns the registered codec for name. An empty name selects Default.
func ByName(name string) (Codec, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	if n == "" {
		n = Default
	}
	mu.RLock()
	c, ok := registry[n]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q (supported: %v)", ErrUnknownCodec, name, Names())
	}
	return c, nil
}

// Names lists registered codec names in sorted order.
func Names() []string {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]string, 0, len(registry))
	for n := range registry {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// ROT13 rotates ASCII letters by 13 places and leaves every other byte alone,
// so non-UTF-8 input round-trips unchanged.
// It is an obfuscation placeholder, not encryption. Line breaks are escaped
// (\n, \r, \\) so multi-line content still fits in one record.
type ROT13 struct{}

var lineEscaper = strings.NewReplacer(`\`, `\\`, "\n", `\n`, "\r", `\r`)

func (ROT13) Name() string { return "rot13" }

func (ROT13) Encode(text string) string { return lineEscaper.Replace(rotate(text)) }

func (ROT13) Decode(text string) (string, error) {
	raw, err := unescapeLines(text)
	if err != nil {
		return "", err
	}
	return rotate(raw), nil
}

func unescapeLines(s string) (string, error) {
	if !strings.Contains(s, `\`) {
		return s, nil
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '\\' {
			b.WriteByte(c)
			continue
		}
		if i+1 >= len(s) {
			return "", fmt.Errorf("rot13 decode: dangling escape at offset %d", i)
		}
		i++
		switch s[i] {
		case 'n':
			b.WriteByte('\n')
		case 'r':
			b.WriteByte('\r')
		case '\\':
			b.WriteByte('\\')
		default:
			return "", fmt.Errorf("rot13 decode: invalid escape \\%c at offset %d", s[i], i-1)
		}
	}
	return b.String(), nil
}

// rotate works on bytes: multi-byte UTF-8 sequences never contain ASCII
// letters, and invalid sequences must survive as they are.
func rotate(s string) string {
	b := []byte(s)
	for i, c := range b {
		switch {
		case c >= 'a' && c <= 'z':
			b[i] = 'a' + (c-'a'+13)%26
		case c >= 'A' && c <= 'Z':
			b[i] = 'A' + (c-'A'+13)%26
		}
	}
	return string(b)
}

// Base64 stores records as standard base64.
type Base64 struct{}

func (Base64) Name() string { return "base64" }

func (Base64) Encode(text string) string {
	return base64.StdEncoding.EncodeToString([]byte(text))
}

func (Base64) Decode(text string) (string, error) {
	b, err := base64.StdEncoding.DecodeString(strings.TrimSpace(text))
	if err != nil {
		return "", fmt.Errorf("base64 decode: %w", err)
	}
	return string(b), nil
}

// Zstd compresses records with zstd and base64-encodes the frame so the result
// stays a single text line. Encoder and decoder are created lazily and reused.
type Zstd struct {
	once sync.Once
	enc  *zstd.Encoder
	dec  *zstd.Decoder
	err  error
}

func (z *Zstd) Name() string { return "zstd" }

func (z *Zstd) init() {
	z.once.Do(func() {
		z.enc, z.err = zstd.NewWriter(nil)
		if z.err != nil {
			return
		}
		z.dec, z.err = zstd.NewReader(nil)
	})
}

func (z *Zstd) Encode(text string) string {
	z.init()
	if z.err != nil {
		// encoder construction only fails on invalid options; fall back to plain base64
		return Base64{}.Encode(text)
	}
	return base64.StdEncoding.EncodeToString(z.enc.EncodeAll([]byte(text), nil))
}

func (z *Zstd) Decode(text string) (string, error) {
	z.init()
	if z.err != nil {
		return "", fmt.Errorf("zstd init: %w", z.err)
	}
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(text))
	if err != nil {
		return "", fmt.Errorf("zstd base64 decode: %w", err)
	}
	out, err := z.dec.DecodeAll(raw, nil)
	if err != nil {
		return "", fmt.Errorf("zstd decode: %w", err)
	}
	return string(out), nil
}
