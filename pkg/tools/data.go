package tools

import (
	"bytes"
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"hash"
	"strings"

	"github.com/google/uuid"
	"github.com/platinummonkey/tollgate/pkg/apierr"
)

func jsonFormatter(in Input) (interface{}, error) {
	raw, err := in.String("json", "")
	if err != nil {
		return nil, err
	}
	indent, err := in.Int("indent", 2, 0, 8)
	if err != nil {
		return nil, err
	}
	minify, err := in.Bool("minify", false)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	var ferr error
	if minify {
		ferr = json.Compact(&buf, []byte(raw))
	} else {
		ferr = json.Indent(&buf, []byte(raw), "", strings.Repeat(" ", indent))
	}
	if ferr != nil {
		return nil, apierr.Validation("Invalid JSON").WithDetail("json", ferr.Error())
	}

	return map[string]interface{}{"formatted": buf.String(), "valid": true}, nil
}

func base64Tool(in Input) (interface{}, error) {
	text, err := in.String("text", "")
	if err != nil {
		return nil, err
	}
	mode, err := in.String("mode", "encode")
	if err != nil {
		return nil, err
	}

	switch strings.ToLower(mode) {
	case "encode":
		return map[string]string{"result": base64.StdEncoding.EncodeToString([]byte(text)), "mode": "encode"}, nil
	case "decode":
		decoded, derr := base64.StdEncoding.DecodeString(strings.TrimSpace(text))
		if derr != nil {
			return nil, apierr.Validation("Invalid base64 input").WithDetail("text", derr.Error())
		}
		return map[string]string{"result": string(decoded), "mode": "decode"}, nil
	default:
		return nil, apierr.Validation("Unsupported mode").WithDetail("mode", "one of encode, decode")
	}
}

var hashAlgorithms = map[string]func() hash.Hash{
	"md5":    md5.New,
	"sha1":   sha1.New,
	"sha256": sha256.New,
	"sha512": sha512.New,
}

func hashGenerator(in Input) (interface{}, error) {
	text, err := in.String("text", "")
	if err != nil {
		return nil, err
	}
	algorithm, err := in.String("algorithm", "sha256")
	if err != nil {
		return nil, err
	}

	algorithm = strings.ToLower(algorithm)
	newHash, ok := hashAlgorithms[algorithm]
	if !ok {
		return nil, apierr.Validation("Unsupported algorithm").WithDetail("algorithm", "one of md5, sha1, sha256, sha512")
	}

	h := newHash()
	h.Write([]byte(text))
	return map[string]string{"hash": hex.EncodeToString(h.Sum(nil)), "algorithm": algorithm}, nil
}

func uuidGenerator(in Input) (interface{}, error) {
	count, err := in.Int("count", 1, 1, 50)
	if err != nil {
		return nil, err
	}

	ids := make([]string, count)
	for i := range ids {
		ids[i] = uuid.NewString()
	}
	return map[string]interface{}{"uuids": ids}, nil
}
