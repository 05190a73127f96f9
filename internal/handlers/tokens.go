package handlers

import (
	"log/slog"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

var encodingOnce sync.Once

var encoding *tiktoken.Tiktoken

// countInputTokens estimates the prompt's token count with the cl100k_base
// encoding. The count is advisory (request logging and usage reporting), so
// an unavailable encoding degrades to zero rather than failing the request.
func countInputTokens(text string, logger *slog.Logger) int {
	encodingOnce.Do(func() {
		enc, err := tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			logger.Warn("Token encoding unavailable, input token counts will be zero", "error", err)
			return
		}

		encoding = enc
	})

	if encoding == nil {
		return 0
	}

	return len(encoding.Encode(text, nil, nil))
}
