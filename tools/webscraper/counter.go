package webscraper

import (
	"fmt"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
	tiktoken_loader "github.com/pkoukk/tiktoken-go-loader"
)

// DefaultEncoding is the tiktoken encoding of current OpenAI chat models
const DefaultEncoding = tiktoken.MODEL_CL100K_BASE

// Counter measures page content against the output limit
type Counter interface {
	// Count returns the size of text in the counter's unit
	Count(text string) int
	// Cut returns the longest prefix of text not larger than n units
	Cut(text string, n int) string
}

// RuneCounter counts unicode code points
type RuneCounter struct{}

func (RuneCounter) Count(text string) int {
	return utf8.RuneCountInString(text)
}

func (RuneCounter) Cut(text string, n int) string {
	runes := []rune(text)
	if n >= len(runes) {
		return text
	}
	return string(runes[:n])
}

var bpeLoaderOnce sync.Once

// TikTokenCounter counts tokens with a tiktoken encoding
type TikTokenCounter struct {
	tke *tiktoken.Tiktoken
}

// NewTikTokenCounter loads encoding from the ranks embedded in tiktoken-go-loader,
// nothing is downloaded
func NewTikTokenCounter(encoding string) (*TikTokenCounter, error) {
	bpeLoaderOnce.Do(func() {
		tiktoken.SetBpeLoader(tiktoken_loader.NewOfflineLoader())
	})
	tke, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, fmt.Errorf("failed to get encoding: %w", err)
	}
	return &TikTokenCounter{tke: tke}, nil
}

func (c *TikTokenCounter) Count(text string) int {
	return len(c.tke.Encode(text, nil, nil))
}

func (c *TikTokenCounter) Cut(text string, n int) string {
	tokens := c.tke.Encode(text, nil, nil)
	if n >= len(tokens) {
		return text
	}
	// a cut inside a multi-byte rune leaves a partial sequence
	return strings.ToValidUTF8(c.tke.Decode(tokens[:n]), "")
}
