package ingest

import (
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
)

// Downloader fetches the raw DVF extract for a (year, department) pair.
type Downloader interface {
	Download(year, department string) (io.ReadCloser, error)
}

// HTTPDownloader pulls extracts from the open-data mirror following the
// {baseURL}/dvf-{year}-{department}.csv convention. A timeout behaves
// exactly like any other download failure.
type HTTPDownloader struct {
	baseURL string
	client  *http.Client
	logger  *logrus.Logger
}

func NewHTTPDownloader(baseURL string, timeout time.Duration, logger *logrus.Logger) *HTTPDownloader {
	return &HTTPDownloader{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

func (d *HTTPDownloader) Download(year, department string) (io.ReadCloser, error) {
	url := fmt.Sprintf("%s/dvf-%s-%s.csv", d.baseURL, year, department)
	d.logger.WithField("url", url).Info("Downloading DVF extract")

	resp, err := d.client.Get(url)
	if err != nil {
		return nil, fmt.Errorf("failed to download %s: %w", url, err)
	}

	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("unexpected status %d downloading %s", resp.StatusCode, url)
	}

	return resp.Body, nil
}
