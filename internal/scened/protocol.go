package scened

import (
	"encoding/json"

	"scenequeue/internal/core/queue"
)

type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Result  any             `json:"result,omitempty"`
	Error   *ErrorObject    `json:"error,omitempty"`
}

type ErrorObject struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

const (
	codeParse          = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeServer         = -32000
)

type SceneOpenParams struct {
	Name                     string `json:"name,omitempty"`
	Path                     string `json:"path"`
	Watch                    bool   `json:"watch,omitempty"`
	AutoFlush                bool   `json:"auto_flush,omitempty"`
	DebounceMS               int    `json:"debounce_ms,omitempty"`
	View                     string `json:"view,omitempty"`
	RespectDisplayAttributes bool   `json:"respect_display_attributes,omitempty"`
}

type SceneParams struct {
	Scene string `json:"scene"`
}

type SceneInfo struct {
	ID        string `json:"id"`
	Path      string `json:"path"`
	Watch     bool   `json:"watch"`
	AutoFlush bool   `json:"auto_flush"`
	State     string `json:"state"`
	Reloads   int64  `json:"reloads"`
}

type WorldCreateParams struct {
	Scene string `json:"scene"`
	// Defer leaves the enumeration pending for the next flush.
	Defer bool `json:"defer,omitempty"`
}

type FlushParams struct {
	Scene string `json:"scene"`
	// NoDispatch resolves and commits without calling the consumer.
	NoDispatch bool `json:"no_dispatch,omitempty"`
}

type BatchGetParams struct {
	Scene string `json:"scene"`
	Seq   uint64 `json:"seq"`
}

type ContentParams struct {
	Scene string `json:"scene"`
	ID    string `json:"id"`
}

type MaterialOwnersResult struct {
	Materials []string `json:"materials"`
	Objects   []string `json:"objects"`
}

type StatsResult struct {
	Scene   string         `json:"scene"`
	Queue   queue.Stats    `json:"queue"`
	History []uint64       `json:"history"`
	Explain map[string]any `json:"explain,omitempty"`
}

type JournalFindParams struct {
	Object string `json:"object"`
	Limit  int    `json:"limit,omitempty"`
}

type JournalSearchParams struct {
	Text  string `json:"text"`
	Limit int    `json:"limit,omitempty"`
}
