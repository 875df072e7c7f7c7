package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

// TestRecovery はRecoveryミドルウェアを検証する。
func TestRecovery(t *testing.T) {
	t.Parallel()

	t.Run("パニック発生時に500を返すこと", func(t *testing.T) {
		t.Parallel()

		router := gin.New()
		router.Use(Recovery())
		router.GET("/panic", func(_ *gin.Context) {
			panic("想定外のエラー")
		})

		req := httptest.NewRequest(http.MethodGet, "/panic", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		if w.Code != http.StatusInternalServerError {
			t.Errorf("ステータスコード: got %d, want %d", w.Code, http.StatusInternalServerError)
		}
	})

	t.Run("パニックがない場合は正常に処理されること", func(t *testing.T) {
		t.Parallel()

		router := gin.New()
		router.Use(Recovery())
		router.GET("/ok", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"status": "ok"})
		})

		req := httptest.NewRequest(http.MethodGet, "/ok", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Errorf("ステータスコード: got %d, want %d", w.Code, http.StatusOK)
		}
	})
}

// TestCORS はCORSミドルウェアを検証する。
func TestCORS(t *testing.T) {
	t.Parallel()

	t.Run("許可されたオリジンにCORSヘッダーを付与すること", func(t *testing.T) {
		t.Parallel()

		router := gin.New()
		router.Use(CORS([]string{"http://localhost:5173"}))
		router.GET("/api", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"status": "ok"})
		})

		req := httptest.NewRequest(http.MethodGet, "/api", nil)
		req.Header.Set("Origin", "http://localhost:5173")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:5173" {
			t.Errorf("Access-Control-Allow-Origin: got %q, want %q", got, "http://localhost:5173")
		}
	})

	t.Run("許可されていないオリジンにはヘッダーを付与しないこと", func(t *testing.T) {
		t.Parallel()

		router := gin.New()
		router.Use(CORS([]string{"http://localhost:5173"}))
		router.GET("/api", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"status": "ok"})
		})

		req := httptest.NewRequest(http.MethodGet, "/api", nil)
		req.Header.Set("Origin", "http://evil.example.com")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		if got := w.Header().Get("Access-Control-Allow-Origin"); got != "" {
			t.Errorf("Access-Control-Allow-Originが付与されるべきではない: got %q", got)
		}
	})

	t.Run("OPTIONSリクエストはNoContentで即応答すること", func(t *testing.T) {
		t.Parallel()

		router := gin.New()
		router.Use(CORS([]string{"http://localhost:5173"}))

		req := httptest.NewRequest(http.MethodOptions, "/api", nil)
		req.Header.Set("Origin", "http://localhost:5173")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		if w.Code != http.StatusNoContent {
			t.Errorf("ステータスコード: got %d, want %d", w.Code, http.StatusNoContent)
		}
	})
}
