// Package wal 提供以 JSON lines 追加寫入的 Write-Ahead Log
package wal

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"sync"
)

// FileModePrivate rw------- 只有擁有者可讀寫，帳本內容不應被其他使用者讀取
const FileModePrivate fs.FileMode = 0600

// ErrCorrupted 某一行無法解碼成紀錄 (尾端寫到一半的殘行除外)
var ErrCorrupted = errors.New("wal: corrupted record")

// Log 每一行是一筆 T 的 Write-Ahead Log
//
// 結構:
//
//	file: 以 O_APPEND 開啟，寫入一律落在檔尾
//	records: Replay 之後累計的完整紀錄筆數
type Log[T any] struct {
	mu      sync.Mutex
	file    *os.File
	records int
}

// Open 開啟或建立 WAL 檔案
//
// 參數:
//
//	path: 檔案路徑，不存在時建立
//
// 回傳:
//
//	*Log[T]: 尚未 Replay 的 Log
//	error: 開檔錯誤
func Open[T any](path string) (*Log[T], error) {
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_RDWR, FileModePrivate)
	if err != nil {
		return nil, fmt.Errorf("wal: open %s: %w", path, err)
	}
	return &Log[T]{file: file}, nil
}

// Append 將 rec 編碼成一行並 fsync，回傳 nil 時紀錄已持久化
func (l *Log[T]) Append(rec T) error {
	line, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("wal: encode: %w", err)
	}
	line = append(line, '\n')

	l.mu.Lock()
	defer l.mu.Unlock()
	// 單次 Write，崩潰時最多留下一行殘行
	if _, err := l.file.Write(line); err != nil {
		return fmt.Errorf("wal: write: %w", err)
	}
	if err := l.file.Sync(); err != nil {
		return fmt.Errorf("wal: sync: %w", err)
	}
	l.records++
	return nil
}

// Replay 依寫入順序把每一筆紀錄交給 fn
// 檔尾沒有換行的殘行是寫到一半就崩潰的紀錄，會被截斷而不是回報錯誤
//
// 參數:
//
//	fn: 處理單筆紀錄，回傳錯誤會中止 Replay
//
// 回傳:
//
//	error: ErrCorrupted、fn 的錯誤 (附上行號) 或 I/O 錯誤
func (l *Log[T]) Replay(fn func(rec T) error) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	// O_APPEND 只影響寫入位置，讀取要自己回到檔頭
	if _, err := l.file.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("wal: seek: %w", err)
	}
	l.records = 0

	var (
		r      = bufio.NewReader(l.file)
		offset int64
	)
	for lineNo := 1; ; lineNo++ {
		raw, err := r.ReadBytes('\n')
		if errors.Is(err, io.EOF) {
			if len(raw) == 0 {
				return nil
			}
			if err := l.file.Truncate(offset); err != nil {
				return fmt.Errorf("wal: truncate torn record at line %d: %w", lineNo, err)
			}
			return nil
		}
		if err != nil {
			return fmt.Errorf("wal: read: %w", err)
		}
		offset += int64(len(raw))

		raw = bytes.TrimSpace(raw)
		if len(raw) == 0 {
			continue
		}
		var rec T
		if err := json.Unmarshal(raw, &rec); err != nil {
			return fmt.Errorf("%w: line %d: %v", ErrCorrupted, lineNo, err)
		}
		if err := fn(rec); err != nil {
			return fmt.Errorf("wal: line %d: %w", lineNo, err)
		}
		l.records++
	}
}

// Len Replay 之後讀到與新寫入的紀錄筆數
func (l *Log[T]) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.records
}

// Close 關閉檔案
func (l *Log[T]) Close() error {
	return l.file.Close()
}
