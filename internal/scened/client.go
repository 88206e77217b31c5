package scened

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"
	"sync"
	"time"

	"scenequeue/internal/journal"
	"scenequeue/internal/journal/store"
	"scenequeue/internal/model"
)

type RPCError struct {
	Code    int
	Message string
}

func (e *RPCError) Error() string { return fmt.Sprintf("rpc error (%d): %s", e.Code, e.Message) }

// Client is a line-delimited JSON-RPC client. Calls are serialized.
type Client struct {
	mu     sync.Mutex
	conn   net.Conn
	r      *lineReader
	w      *bufio.Writer
	nextID int64
}

func Dial(addr string) (*Client, error) {
	conn, err := net.DialTimeout("tcp", addr, 2*time.Second)
	if err != nil {
		return nil, err
	}
	return &Client{
		conn: conn,
		r:    newLineReader(conn, 0),
		w:    bufio.NewWriter(conn),
	}, nil
}

func (c *Client) Close() error {
	if c == nil || c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

type rawResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *ErrorObject    `json:"error,omitempty"`
}

func (c *Client) call(method string, params any, out any) error {
	if c == nil || c.conn == nil {
		return fmt.Errorf("client is nil")
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	c.nextID++
	req := Request{JSONRPC: "2.0", Method: method, ID: json.RawMessage(fmt.Sprintf("%d", c.nextID))}
	if params != nil {
		b, err := json.Marshal(params)
		if err != nil {
			return err
		}
		req.Params = b
	}

	if err := writeLine(c.w, req); err != nil {
		return err
	}

	line, err := c.r.next()
	if err != nil {
		return err
	}
	var resp rawResponse
	if err := json.Unmarshal(line, &resp); err != nil {
		return err
	}
	if resp.Error != nil {
		return &RPCError{Code: resp.Error.Code, Message: resp.Error.Message}
	}
	if out == nil || len(resp.Result) == 0 {
		return nil
	}
	return json.Unmarshal(resp.Result, out)
}

func (c *Client) Ping() error {
	var out string
	if err := c.call("ping", nil, &out); err != nil {
		return err
	}
	if out != "pong" {
		return fmt.Errorf("unexpected ping result: %q", out)
	}
	return nil
}

func (c *Client) Version() (string, error) {
	var out string
	if err := c.call("version", nil, &out); err != nil {
		return "", err
	}
	return out, nil
}

func (c *Client) SceneOpen(p SceneOpenParams) (SceneInfo, error) {
	var out SceneInfo
	err := c.call("scene.open", p, &out)
	return out, err
}

func (c *Client) SceneClose(scene string) error {
	return c.call("scene.close", SceneParams{Scene: scene}, nil)
}

func (c *Client) SceneList() ([]SceneInfo, error) {
	var out []SceneInfo
	err := c.call("scene.list", nil, &out)
	return out, err
}

func (c *Client) WorldCreate(p WorldCreateParams) (model.Batch, error) {
	var out model.Batch
	err := c.call("world.create", p, &out)
	return out, err
}

func (c *Client) Flush(p FlushParams) (model.Batch, error) {
	var out model.Batch
	err := c.call("flush", p, &out)
	return out, err
}

func (c *Client) BatchGet(scene string, seq uint64) (model.Batch, error) {
	var out model.Batch
	err := c.call("batch.get", BatchGetParams{Scene: scene, Seq: seq}, &out)
	return out, err
}

func (c *Client) MaterialGet(scene string, id model.ContentID) (model.MaterialRecord, error) {
	var out model.MaterialRecord
	err := c.call("material.get", ContentParams{Scene: scene, ID: id.String()}, &out)
	return out, err
}

func (c *Client) MaterialOwners(scene string, id model.ContentID) (MaterialOwnersResult, error) {
	var out MaterialOwnersResult
	err := c.call("material.owners", ContentParams{Scene: scene, ID: id.String()}, &out)
	return out, err
}

func (c *Client) Stats(scene string) (StatsResult, error) {
	var out StatsResult
	err := c.call("stats", SceneParams{Scene: scene}, &out)
	return out, err
}

func (c *Client) JournalFind(p JournalFindParams) ([]store.Entry, error) {
	var out []store.Entry
	err := c.call("journal.find", p, &out)
	return out, err
}

func (c *Client) JournalSearch(p JournalSearchParams) ([]store.Entry, error) {
	var out []store.Entry
	err := c.call("journal.search", p, &out)
	return out, err
}

func (c *Client) JournalInfo() (journal.Info, error) {
	var out journal.Info
	err := c.call("journal.info", nil, &out)
	return out, err
}
