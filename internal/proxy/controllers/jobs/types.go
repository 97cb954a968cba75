package jobs

import "github.com/grabarr/grabarr/internal/store/types"

type JobsResponse struct {
	Data   []types.Job `json:"data"`
	Digest string      `json:"digest"`
}

type JobConfigResponse struct {
	Status  int       `json:"status"`
	Success bool      `json:"success"`
	Data    types.Job `json:"data,omitempty"`
}

type JobRunResponse struct {
	Status  int  `json:"status"`
	Success bool `json:"success"`
}

type EmbedKeyResponse struct {
	Status   int    `json:"status"`
	Success  bool   `json:"success"`
	EmbedKey string `json:"embed_key"`
}
