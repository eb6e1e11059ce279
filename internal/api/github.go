package api

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/BogdanTretyakov/sc-statistic-backend/internal/config"
	"github.com/BogdanTretyakov/sc-statistic-backend/internal/constants"

	"github.com/valyala/fasthttp"
)

// GitHubClient reads trees and blobs of the game data repository.
type GitHubClient struct {
	baseURL   string
	token     string
	userAgent string
	client    *fasthttp.Client
}

func NewGitHubClient(cfg *config.Config) *GitHubClient {
	return &GitHubClient{
		baseURL:   cfg.GitHubAPIURL,
		token:     cfg.WikiDataRepoToken,
		userAgent: cfg.UserAgent,
		client:    newFastHTTPClient(constants.ExternalAPITimeout),
	}
}

func (c *GitHubClient) headers() map[string]string {
	h := map[string]string{
		"User-Agent": c.userAgent,
		"Accept":     "application/vnd.github+json",
	}
	if c.token != "" {
		h["Authorization"] = "token " + c.token
	}
	return h
}

func (c *GitHubClient) GetTree(ctx context.Context, repo, branch string) (*GitTree, error) {
	u := fmt.Sprintf("%s/repos/%s/git/trees/%s?recursive=1", c.baseURL, repo, branch)
	return doRequest[GitTree](ctx, c.client, u, c.headers())
}

// GetBlobContent downloads a blob by its API url and returns the decoded bytes.
func (c *GitHubClient) GetBlobContent(ctx context.Context, blobURL string) ([]byte, error) {
	blob, err := doRequest[GitBlob](ctx, c.client, blobURL, c.headers())
	if err != nil {
		return nil, err
	}
	if blob.Encoding != "base64" {
		return nil, fmt.Errorf("blob %s is %s encoded, expected base64", blobURL, blob.Encoding)
	}
	// GitHub wraps base64 content at 60 columns
	return base64.StdEncoding.DecodeString(newlines.Replace(blob.Content))
}

var newlines = strings.NewReplacer("\n", "", "\r", "")

type GitTree struct {
	Sha       string        `json:"sha"`
	URL       string        `json:"url"`
	Tree      []GitTreeFile `json:"tree"`
	Truncated bool          `json:"truncated"`
}

type GitTreeFile struct {
	Path string `json:"path"`
	Mode string `json:"mode"`
	Type string `json:"type"`
	Sha  string `json:"sha"`
	Size int    `json:"size"`
	URL  string `json:"url"`
}

type GitBlob struct {
	Content  string `json:"content"`
	Encoding string `json:"encoding"`
}
