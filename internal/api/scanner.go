package api

import (
	"errors"
	"fmt"
	"io"

	"github.com/dutchcoders/go-clamd"
)

// ErrInfected 表示扫描发现了恶意内容。
var ErrInfected = errors.New("malicious file detected")

// Scanner 在上传前检查文件内容。
type Scanner interface {
	Scan(r io.Reader) error
}

// ClamdScanner 通过 clamd 的 INSTREAM 命令扫描。
type ClamdScanner struct {
	addr string
}

// NewScanner 在地址为空时返回不做检查的 Scanner。
func NewScanner(addr string) Scanner {
	if addr == "" {
		return nopScanner{}
	}
	return &ClamdScanner{addr: addr}
}

func (s *ClamdScanner) Scan(r io.Reader) error {
	abort := make(chan bool)
	defer close(abort)

	results, err := clamd.NewClamd(s.addr).ScanStream(r, abort)
	if err != nil {
		return fmt.Errorf("clamd scan stream: %w", err)
	}
	var verdict error
	for result := range results {
		switch result.Status {
		case clamd.RES_OK:
		case clamd.RES_FOUND:
			verdict = ErrInfected
		default:
			if verdict == nil {
				verdict = fmt.Errorf("clamd scan: %s %s", result.Status, result.Description)
			}
		}
	}
	return verdict
}

type nopScanner struct{}

func (nopScanner) Scan(io.Reader) error { return nil }
