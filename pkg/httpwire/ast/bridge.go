// Package ast bridges wire messages to shape-core's generic AST
// (ast.SchemaNode), the same tree shape tools elsewhere in the shapestone
// toolchain already consume (schema validation, diffing, rendering).
// Grounded on shape-http/pkg/http/{parser,render,convert}.go, which does the
// identical bridge for the flat Request/Response structs; adapted here to
// bridge the header.Header/httpwire.Parser core instead, and to carry a
// complete field list rather than shape-http's two named Content-Type/
// Content-Length fields plus a generic slice.
package ast

import (
	"fmt"
	"io"
	"strconv"

	coreast "github.com/shapestone/shape-core/pkg/ast"

	"github.com/shapestone/shape-httpwire/pkg/header"
	"github.com/shapestone/shape-httpwire/pkg/httpwire"
)

var zeroPos = coreast.Position{}

// Parse decodes a complete HTTP/1.x request from data and renders it as an
// AST node:
//
//	{ "type": "request", "method": "GET", "target": "/api",
//	  "versionMajor": 1, "versionMinor": 1,
//	  "headers": [{"key": "Host", "value": "example.com"}, ...],
//	  "body": "..." }
func Parse(data []byte) (coreast.SchemaNode, error) {
	return parseWith(httpwire.NewRequestParser(), data, true)
}

// ParseResponse is Parse's response-side counterpart, rendering
// "statusCode"/"reason" in place of "method"/"target".
func ParseResponse(data []byte) (coreast.SchemaNode, error) {
	return parseWith(httpwire.NewResponseParser(), data, false)
}

// ParseReader reads all of r and parses it as a request.
func ParseReader(r io.Reader) (coreast.SchemaNode, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

func parseWith(p *httpwire.Parser, data []byte, isRequest bool) (coreast.SchemaNode, error) {
	dst, err := p.Prepare(len(data))
	if err != nil {
		return nil, err
	}
	copy(dst, data)
	p.Commit(len(data))
	p.CommitEOF()

	var body []byte
	for {
		ev, err := p.Parse()
		if err != nil {
			return nil, err
		}
		switch ev.Kind {
		case httpwire.EventBodyData:
			body = append(body, ev.Data...)
		case httpwire.EventComplete:
			return messageToNode(header.ViewOf(p.Header()), body, isRequest), nil
		case httpwire.EventNeedMore:
			return nil, fmt.Errorf("httpwire/ast: incomplete message")
		}
	}
}

func messageToNode(v header.View, body []byte, isRequest bool) coreast.SchemaNode {
	props := map[string]coreast.SchemaNode{
		"versionMajor": coreast.NewLiteralNode(int64(v.VersionMajor()), zeroPos),
		"versionMinor": coreast.NewLiteralNode(int64(v.VersionMinor()), zeroPos),
		"headers":      fieldsToNode(v.Fields()),
	}
	if isRequest {
		props["type"] = coreast.NewLiteralNode("request", zeroPos)
		props["method"] = coreast.NewLiteralNode(v.Method(), zeroPos)
		props["target"] = coreast.NewLiteralNode(v.Target(), zeroPos)
	} else {
		props["type"] = coreast.NewLiteralNode("response", zeroPos)
		props["statusCode"] = coreast.NewLiteralNode(int64(v.StatusCode()), zeroPos)
		props["reason"] = coreast.NewLiteralNode(v.Reason(), zeroPos)
	}
	if body != nil {
		props["body"] = coreast.NewLiteralNode(string(body), zeroPos)
	}
	return coreast.NewObjectNode(props, zeroPos)
}

func fieldsToNode(fields []header.FieldView) coreast.SchemaNode {
	elements := make([]coreast.SchemaNode, len(fields))
	for i, f := range fields {
		elements[i] = coreast.NewObjectNode(map[string]coreast.SchemaNode{
			"key":   coreast.NewLiteralNode(string(f.Name), zeroPos),
			"value": coreast.NewLiteralNode(string(f.Value), zeroPos),
		}, zeroPos)
	}
	return coreast.NewArrayDataNode(elements, zeroPos)
}

// Render converts a node produced by Parse/ParseResponse back to wire
// bytes. The node must be an ObjectNode with a "type" property of
// "request" or "response".
func Render(node coreast.SchemaNode) ([]byte, error) {
	obj, ok := node.(*coreast.ObjectNode)
	if !ok {
		return nil, fmt.Errorf("httpwire/ast: Render: expected ObjectNode, got %T", node)
	}
	props := obj.Properties()
	msgType, err := literalString(props["type"])
	if err != nil {
		return nil, fmt.Errorf("httpwire/ast: Render: %w", err)
	}

	switch msgType {
	case "request":
		return renderRequest(props)
	case "response":
		return renderResponse(props)
	default:
		return nil, fmt.Errorf("httpwire/ast: Render: unknown message type %q", msgType)
	}
}

func renderRequest(props map[string]coreast.SchemaNode) ([]byte, error) {
	method, err := literalString(props["method"])
	if err != nil {
		return nil, err
	}
	target, err := literalString(props["target"])
	if err != nil {
		return nil, err
	}
	major, minor := versionFrom(props)
	h := header.New(header.KindRequest)
	if err := h.SetStartLine(method, target, major, minor); err != nil {
		return nil, err
	}
	body, err := appendFields(h, props)
	if err != nil {
		return nil, err
	}
	return renderMessage(httpwire.NewRequestSerializer(), h, body)
}

func renderResponse(props map[string]coreast.SchemaNode) ([]byte, error) {
	status, err := literalInt(props["statusCode"])
	if err != nil {
		return nil, err
	}
	reason, _ := literalString(props["reason"])
	major, minor := versionFrom(props)
	h := header.New(header.KindResponse)
	if err := h.SetStatusLine(major, minor, status, reason); err != nil {
		return nil, err
	}
	body, err := appendFields(h, props)
	if err != nil {
		return nil, err
	}
	return renderMessage(httpwire.NewResponseSerializer(), h, body)
}

func appendFields(h *header.Header, props map[string]coreast.SchemaNode) ([]byte, error) {
	if hdrsNode, ok := props["headers"]; ok {
		arr, ok := hdrsNode.(*coreast.ArrayDataNode)
		if !ok {
			return nil, fmt.Errorf("httpwire/ast: headers is not an array")
		}
		for _, elem := range arr.Elements() {
			obj, ok := elem.(*coreast.ObjectNode)
			if !ok {
				continue
			}
			key, _ := literalString(obj.Properties()["key"])
			value, _ := literalString(obj.Properties()["value"])
			if key == "" {
				continue
			}
			if err := h.Append(key, value); err != nil {
				return nil, err
			}
		}
	}
	if bodyNode, ok := props["body"]; ok {
		s, err := literalString(bodyNode)
		if err != nil {
			return nil, err
		}
		return []byte(s), nil
	}
	return nil, nil
}

func renderMessage(s *httpwire.Serializer, h *header.Header, body []byte) ([]byte, error) {
	if len(body) == 0 {
		if err := s.StartEmpty(h); err != nil {
			return nil, err
		}
	} else if err := s.StartWithBody(h, body); err != nil {
		return nil, err
	}
	var out []byte
	for !s.IsDone() {
		segs, err := s.Prepare()
		if err != nil {
			return nil, err
		}
		if len(segs) == 0 {
			return nil, fmt.Errorf("httpwire/ast: Render: serializer stalled")
		}
		n := 0
		for _, seg := range segs {
			out = append(out, seg...)
			n += len(seg)
		}
		s.Consume(n)
	}
	return out, nil
}

func versionFrom(props map[string]coreast.SchemaNode) (int, int) {
	major, minor := 1, 1
	if v, err := literalInt(props["versionMajor"]); err == nil {
		major = v
	}
	if v, err := literalInt(props["versionMinor"]); err == nil {
		minor = v
	}
	return major, minor
}

func literalString(node coreast.SchemaNode) (string, error) {
	lit, ok := node.(*coreast.LiteralNode)
	if !ok {
		return "", fmt.Errorf("httpwire/ast: expected literal, got %T", node)
	}
	switch v := lit.Value().(type) {
	case string:
		return v, nil
	default:
		return fmt.Sprintf("%v", v), nil
	}
}

func literalInt(node coreast.SchemaNode) (int, error) {
	lit, ok := node.(*coreast.LiteralNode)
	if !ok {
		return 0, fmt.Errorf("httpwire/ast: expected literal, got %T", node)
	}
	switch v := lit.Value().(type) {
	case int64:
		return int(v), nil
	case float64:
		return int(v), nil
	case string:
		n, err := strconv.Atoi(v)
		return n, err
	default:
		return 0, fmt.Errorf("httpwire/ast: literal is not numeric: %T", v)
	}
}
