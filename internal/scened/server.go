package scened

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strings"
	"sync"

	"scenequeue/internal/journal"
	"scenequeue/internal/version"
)

const DefaultListen = "127.0.0.1:7447"

type Options struct {
	Listen  string
	History int
	// MaxRequestBytes bounds one request line. A connection sending a longer
	// line gets an error response and is closed. 0 selects
	// DefaultMaxRequestBytes.
	MaxRequestBytes int
	Journal         *journal.Writer
	Logger          *slog.Logger
}

type Server struct {
	opts Options
	h    *Handlers
	log  *slog.Logger

	mu        sync.Mutex
	listener  net.Listener
	closeOnce sync.Once
	closed    chan struct{}
}

func NewServer(opts Options) *Server {
	if opts.Listen == "" {
		opts.Listen = DefaultListen
	}
	if opts.MaxRequestBytes <= 0 {
		opts.MaxRequestBytes = DefaultMaxRequestBytes
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Server{
		opts: opts,
		h: NewHandlers(HandlersOptions{
			History: opts.History,
			Journal: opts.Journal,
			Logger:  log,
		}),
		log:    log,
		closed: make(chan struct{}),
	}
}

// Handlers exposes the method implementations, for opening configured
// scenes before Run.
func (s *Server) Handlers() *Handlers {
	if s == nil {
		return nil
	}
	return s.h
}

func (s *Server) Addr() string {
	if s == nil {
		return ""
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *Server) Run() error {
	if s == nil {
		return fmt.Errorf("server is nil")
	}

	ln, err := net.Listen("tcp", s.opts.Listen)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()
	s.log.Info("listening", "addr", ln.Addr().String())

	for {
		conn, err := ln.Accept()
		if err != nil {
			if s.isClosed() {
				return nil
			}
			return err
		}
		go s.handleConn(conn)
	}
}

// Close stops accepting connections and closes every open scene.
func (s *Server) Close() error {
	if s == nil {
		return nil
	}

	s.closeOnce.Do(func() { close(s.closed) })

	s.mu.Lock()
	ln := s.listener
	s.listener = nil
	s.mu.Unlock()

	err := s.h.CloseAll()
	if ln == nil {
		return err
	}
	return errors.Join(ln.Close(), err)
}

func (s *Server) isClosed() bool {
	select {
	case <-s.closed:
		return true
	default:
		return false
	}
}

func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()

	r := newLineReader(conn, s.opts.MaxRequestBytes)
	w := bufio.NewWriter(conn)
	remote := conn.RemoteAddr().String()

	for {
		line, err := r.next()
		if errors.Is(err, ErrLineTooLong) {
			s.log.Warn("request too large", "remote", remote, "limit", s.opts.MaxRequestBytes)
			_ = writeLine(w, Response{
				JSONRPC: "2.0",
				ID:      json.RawMessage("null"),
				Error: &ErrorObject{
					Code:    codeInvalidRequest,
					Message: fmt.Sprintf("request exceeds %d bytes", s.opts.MaxRequestBytes),
				},
			})
			return
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				s.log.Debug("connection read", "remote", remote, "err", err)
			}
			return
		}

		var req Request
		if err := json.Unmarshal(line, &req); err != nil {
			_ = writeLine(w, Response{
				JSONRPC: "2.0",
				ID:      json.RawMessage("null"),
				Error:   &ErrorObject{Code: codeParse, Message: "parse error"},
			})
			continue
		}

		resp := s.dispatch(req)
		if len(req.ID) == 0 {
			// Notification: no response.
			continue
		}
		if err := writeLine(w, resp); err != nil {
			s.log.Debug("connection write", "remote", remote, "err", err)
			return
		}
	}
}

// decodeParams fills p from req.Params. Absent params leave p zero.
func decodeParams(req Request, p any) *ErrorObject {
	if len(req.Params) == 0 {
		return nil
	}
	if err := json.Unmarshal(req.Params, p); err != nil {
		return &ErrorObject{Code: codeInvalidParams, Message: "invalid params"}
	}
	return nil
}

func requireScene(scene string) *ErrorObject {
	if strings.TrimSpace(scene) == "" {
		return &ErrorObject{Code: codeInvalidParams, Message: "scene is required"}
	}
	return nil
}

func serverError(err error) *ErrorObject {
	return &ErrorObject{Code: codeServer, Message: err.Error()}
}

func (s *Server) dispatch(req Request) Response {
	resp := Response{
		JSONRPC: "2.0",
		ID:      req.ID,
	}

	if req.JSONRPC != "" && req.JSONRPC != "2.0" {
		resp.Error = &ErrorObject{Code: codeInvalidRequest, Message: "invalid jsonrpc version"}
		return resp
	}

	var (
		result any
		err    error
		perr   *ErrorObject
	)

	switch req.Method {
	case "ping":
		result = "pong"
	case "version":
		result = version.String()
	case "scene.open":
		var p SceneOpenParams
		if perr = decodeParams(req, &p); perr == nil {
			if strings.TrimSpace(p.Path) == "" {
				perr = &ErrorObject{Code: codeInvalidParams, Message: "path is required"}
				break
			}
			result, err = s.h.SceneOpen(p)
		}
	case "scene.close":
		var p SceneParams
		if perr = decodeParams(req, &p); perr == nil {
			if perr = requireScene(p.Scene); perr == nil {
				result, err = s.h.SceneClose(p)
			}
		}
	case "scene.list":
		result = s.h.SceneList()
	case "world.create":
		var p WorldCreateParams
		if perr = decodeParams(req, &p); perr == nil {
			if perr = requireScene(p.Scene); perr == nil {
				result, err = s.h.WorldCreate(p)
			}
		}
	case "flush":
		var p FlushParams
		if perr = decodeParams(req, &p); perr == nil {
			if perr = requireScene(p.Scene); perr == nil {
				result, err = s.h.Flush(p)
			}
		}
	case "batch.get":
		var p BatchGetParams
		if perr = decodeParams(req, &p); perr == nil {
			if perr = requireScene(p.Scene); perr == nil {
				result, err = s.h.BatchGet(p)
			}
		}
	case "material.get":
		var p ContentParams
		if perr = decodeParams(req, &p); perr == nil {
			if perr = requireScene(p.Scene); perr == nil {
				result, err = s.h.MaterialGet(p)
			}
		}
	case "material.owners":
		var p ContentParams
		if perr = decodeParams(req, &p); perr == nil {
			if perr = requireScene(p.Scene); perr == nil {
				result, err = s.h.MaterialOwners(p)
			}
		}
	case "stats":
		var p SceneParams
		if perr = decodeParams(req, &p); perr == nil {
			if perr = requireScene(p.Scene); perr == nil {
				result, err = s.h.Stats(p)
			}
		}
	case "journal.find":
		var p JournalFindParams
		if perr = decodeParams(req, &p); perr == nil {
			if strings.TrimSpace(p.Object) == "" {
				perr = &ErrorObject{Code: codeInvalidParams, Message: "object is required"}
				break
			}
			result, err = s.h.JournalFind(p)
		}
	case "journal.search":
		var p JournalSearchParams
		if perr = decodeParams(req, &p); perr == nil {
			if strings.TrimSpace(p.Text) == "" {
				perr = &ErrorObject{Code: codeInvalidParams, Message: "text is required"}
				break
			}
			result, err = s.h.JournalSearch(p)
		}
	case "journal.info":
		result, err = s.h.JournalInfo()
	default:
		perr = &ErrorObject{Code: codeMethodNotFound, Message: "method not found"}
	}

	switch {
	case perr != nil:
		resp.Error = perr
	case err != nil:
		resp.Error = serverError(err)
	default:
		resp.Result = result
	}
	return resp
}
