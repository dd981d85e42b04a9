// Package headhunter reads vacancies from the hh.ru API as raw job records.
package headhunter

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/spigell/jobnorm/internal/logger"
)

const (
	apiURL    = "https://api.hh.ru"
	userAgent = "spigell/jobnorm (spigelly@gmail.com)"
	// Max value for search per page.
	perPage = "100"
)

type Client struct {
	token      string
	logger     *zap.Logger
	HTTPClient *http.Client
	UserAgent  string
	APIURL     string
}

// New returns a client. The token is optional; vacancy search is public.
func New(log *zap.Logger, token string) *Client {
	return &Client{
		token:  token,
		APIURL: apiURL,
		HTTPClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		logger:    logger.OrNop(log),
		UserAgent: userAgent,
	}
}
