package scened

import (
	"bufio"
	"encoding/json"
	"errors"
	"io"
	"net"
	"strings"
	"testing"
	"time"
)

func TestServerPingAndVersion(t *testing.T) {
	_, addr := startServer(t, Options{})

	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })

	dec := json.NewDecoder(conn)
	enc := json.NewEncoder(conn)

	if err := enc.Encode(Request{JSONRPC: "2.0", Method: "ping", ID: json.RawMessage("1")}); err != nil {
		t.Fatalf("encode ping: %v", err)
	}
	var pingResp Response
	if err := dec.Decode(&pingResp); err != nil {
		t.Fatalf("decode ping: %v", err)
	}
	if string(pingResp.ID) != "1" || pingResp.Error != nil || pingResp.Result != "pong" {
		t.Fatalf("ping resp=%+v", pingResp)
	}

	if err := enc.Encode(Request{JSONRPC: "2.0", Method: "version", ID: json.RawMessage("2")}); err != nil {
		t.Fatalf("encode version: %v", err)
	}
	var versionResp Response
	if err := dec.Decode(&versionResp); err != nil {
		t.Fatalf("decode version: %v", err)
	}
	if s, ok := versionResp.Result.(string); !ok || s == "" {
		t.Fatalf("version result=%v", versionResp.Result)
	}
}

func TestServer_ProtocolErrors(t *testing.T) {
	_, addr := startServer(t, Options{})

	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	dec := json.NewDecoder(conn)

	send := func(line string) Response {
		t.Helper()
		if _, err := conn.Write([]byte(line + "\n")); err != nil {
			t.Fatalf("write: %v", err)
		}
		var resp Response
		if err := dec.Decode(&resp); err != nil {
			t.Fatalf("decode: %v", err)
		}
		return resp
	}

	cases := []struct {
		line string
		code int
	}{
		{`{not json`, codeParse},
		{`{"jsonrpc":"1.0","id":1,"method":"ping"}`, codeInvalidRequest},
		{`{"jsonrpc":"2.0","id":2,"method":"nope"}`, codeMethodNotFound},
		{`{"jsonrpc":"2.0","id":3,"method":"flush","params":{}}`, codeInvalidParams},
		{`{"jsonrpc":"2.0","id":4,"method":"flush","params":[1]}`, codeInvalidParams},
		{`{"jsonrpc":"2.0","id":5,"method":"scene.open","params":{"path":" "}}`, codeInvalidParams},
		{`{"jsonrpc":"2.0","id":6,"method":"flush","params":{"scene":"missing"}}`, codeServer},
		{`{"jsonrpc":"2.0","id":7,"method":"journal.find","params":{"object":"x"}}`, codeServer},
		{`{"jsonrpc":"2.0","id":8,"method":"journal.info"}`, codeServer},
	}
	for _, tc := range cases {
		resp := send(tc.line)
		if resp.Error == nil || resp.Error.Code != tc.code {
			t.Fatalf("%s: resp=%+v want code %d", tc.line, resp, tc.code)
		}
	}

	// Notifications get no response; the next request is answered normally.
	if _, err := conn.Write([]byte(`{"jsonrpc":"2.0","method":"ping"}` + "\n")); err != nil {
		t.Fatalf("write: %v", err)
	}
	resp := send(`{"jsonrpc":"2.0","id":9,"method":"ping"}`)
	if string(resp.ID) != "9" || resp.Result != "pong" {
		t.Fatalf("resp=%+v", resp)
	}
}

func TestServer_OversizedRequestClosesConnection(t *testing.T) {
	_, addr := startServer(t, Options{MaxRequestBytes: 64})

	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	_ = conn.SetDeadline(time.Now().Add(5 * time.Second))
	dec := json.NewDecoder(conn)

	// Requests up to the limit are served.
	if _, err := conn.Write([]byte(`{"jsonrpc":"2.0","id":1,"method":"ping"}` + "\n")); err != nil {
		t.Fatalf("write: %v", err)
	}
	var resp Response
	if err := dec.Decode(&resp); err != nil || resp.Result != "pong" {
		t.Fatalf("ping resp=%+v err=%v", resp, err)
	}

	big := `{"jsonrpc":"2.0","id":2,"method":"ping","params":"` + strings.Repeat("x", 256) + `"}` + "\n"
	if _, err := conn.Write([]byte(big)); err != nil {
		t.Fatalf("write: %v", err)
	}
	resp = Response{}
	if err := dec.Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Error == nil || resp.Error.Code != codeInvalidRequest || !strings.Contains(resp.Error.Message, "64 bytes") {
		t.Fatalf("resp=%+v", resp)
	}
	if err := dec.Decode(&resp); !errors.Is(err, io.EOF) {
		t.Fatalf("expected connection to close, got %v", err)
	}
}

func TestLineReader(t *testing.T) {
	in := "\n  {\"a\":1}  \r\n\n{\"b\":2}"
	lr := newLineReader(strings.NewReader(in), 16)

	line, err := lr.next()
	if err != nil || string(line) != `{"a":1}` {
		t.Fatalf("first=%q err=%v", line, err)
	}
	line, err = lr.next()
	if err != nil || string(line) != `{"b":2}` {
		t.Fatalf("unterminated last line=%q err=%v", line, err)
	}
	if _, err := lr.next(); !errors.Is(err, io.EOF) {
		t.Fatalf("expected EOF, got %v", err)
	}

	// Lines longer than the reader's internal buffer are assembled.
	long := strings.Repeat("y", 3*4096)
	lr = newLineReader(strings.NewReader(long+"\n"), 0)
	if line, err := lr.next(); err != nil || len(line) != len(long) {
		t.Fatalf("long line len=%d err=%v", len(line), err)
	}

	lr = newLineReader(bufio.NewReader(strings.NewReader(long+"\n")), 4096)
	if _, err := lr.next(); !errors.Is(err, ErrLineTooLong) {
		t.Fatalf("expected ErrLineTooLong, got %v", err)
	}
}
