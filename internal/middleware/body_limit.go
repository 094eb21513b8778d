package middleware

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/hitoshi/universal/internal/model"
)

// errBodyTooLarge は上限を超えたボディを読もうとしたときに返す。
var errBodyTooLarge = errors.New("request body too large")

// NewBodyLimitMiddleware はmaxBytesを超えるリクエストボディを413で拒否するミドルウェアを返す。
// Content-Lengthが上限を超える場合は後続を呼ばずに拒否する。
// Content-Lengthで判定できない場合はボディをメモリに溜めず、読み出したバイト数を数えて
// 上限を超えた時点で読み出しをエラーにし、後続のハンドラーが書こうとしたレスポンスを413に差し替える。
func NewBodyLimitMiddleware(maxBytes int64) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Body == nil || r.Body == http.NoBody {
				next.ServeHTTP(w, r)
				return
			}

			if r.ContentLength > maxBytes {
				rejectBodyTooLarge(w, r, r.ContentLength)
				return
			}

			body := &countingBody{ReadCloser: r.Body, remaining: maxBytes}
			r.Body = body
			lw := &limitWriter{ResponseWriter: w, body: body, req: r}

			next.ServeHTTP(lw, r)

			if body.exceeded && !lw.wroteHeader {
				lw.reject()
			}
		})
	}
}

// countingBody は読み出したバイト数を数え、上限を超えたらerrBodyTooLargeを返す。
type countingBody struct {
	io.ReadCloser
	remaining int64
	received  int64
	exceeded  bool
}

func (b *countingBody) Read(p []byte) (int, error) {
	if b.exceeded {
		return 0, errBodyTooLarge
	}
	// 上限ちょうどのボディとそれを超えるボディを区別するため1バイト多く読む
	if int64(len(p)) > b.remaining+1 {
		p = p[:b.remaining+1]
	}
	n, err := b.ReadCloser.Read(p)
	b.received += int64(n)
	if int64(n) > b.remaining {
		b.exceeded = true
		n = int(b.remaining)
		b.remaining = 0
		return n, errBodyTooLarge
	}
	b.remaining -= int64(n)
	return n, err
}

// limitWriter は上限超過後にハンドラーが書くレスポンスを413に差し替える。
type limitWriter struct {
	http.ResponseWriter
	body        *countingBody
	req         *http.Request
	wroteHeader bool
	rejected    bool
}

func (lw *limitWriter) WriteHeader(code int) {
	if lw.wroteHeader {
		return
	}
	if lw.body.exceeded {
		lw.reject()
		return
	}
	lw.wroteHeader = true
	lw.ResponseWriter.WriteHeader(code)
}

func (lw *limitWriter) Write(b []byte) (int, error) {
	if !lw.wroteHeader {
		lw.WriteHeader(http.StatusOK)
	}
	if lw.rejected {
		return len(b), nil
	}
	return lw.ResponseWriter.Write(b)
}

func (lw *limitWriter) Unwrap() http.ResponseWriter {
	return lw.ResponseWriter
}

func (lw *limitWriter) reject() {
	lw.wroteHeader = true
	lw.rejected = true
	// 内側の圧縮ミドルウェアが設定したヘッダーはエラーレスポンスには当てはまらない
	lw.Header().Del("Content-Encoding")
	lw.Header().Del("Content-Length")
	rejectBodyTooLarge(lw.ResponseWriter, lw.req, lw.body.received)
}

func rejectBodyTooLarge(w http.ResponseWriter, r *http.Request, received int64) {
	slog.Warn("request body too large",
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.Int64("received_bytes", received),
	)
	WriteErrorResponse(w, http.StatusRequestEntityTooLarge, model.NewBodyTooLargeError())
}
