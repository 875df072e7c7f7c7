package httpclient

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

// TestGetJSON はGETリクエストの送信とデシリアライズを検証する。
func TestGetJSON(t *testing.T) {
	t.Parallel()

	t.Run("正常にレスポンスをデシリアライズできること", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodGet {
				t.Errorf("メソッド: got %s, want GET", r.Method)
			}
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
		}))
		t.Cleanup(server.Close)

		client := New(server.URL)
		var result map[string]string
		if err := client.GetJSON(t.Context(), "/health", &result); err != nil {
			t.Fatalf("GetJSONでエラーが発生: %v", err)
		}
		if result["status"] != "ok" {
			t.Errorf("status: got %q, want ok", result["status"])
		}
	})

	t.Run("エラーステータスの場合はエラーを返すこと", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		}))
		t.Cleanup(server.Close)

		client := New(server.URL)
		if err := client.GetJSON(t.Context(), "/missing", nil); err == nil {
			t.Error("エラーが返されるべきです")
		}
	})
}

// TestPostJSON はPOSTリクエストのボディ送信を検証する。
func TestPostJSON(t *testing.T) {
	t.Parallel()

	t.Run("リクエストボディがJSONとして送信されること", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var body map[string]string
			if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
				t.Errorf("ボディのデコードに失敗: %v", err)
			}
			if body["notification_id"] != "notif-1" {
				t.Errorf("notification_id: got %q, want notif-1", body["notification_id"])
			}
			w.WriteHeader(http.StatusOK)
		}))
		t.Cleanup(server.Close)

		client := New(server.URL)
		err := client.PostJSON(t.Context(), "/ack", map[string]string{"notification_id": "notif-1"}, nil)
		if err != nil {
			t.Fatalf("PostJSONでエラーが発生: %v", err)
		}
	})
}

// TestBearerToken はBearerトークンの付与を検証する。
func TestBearerToken(t *testing.T) {
	t.Parallel()

	t.Run("設定したトークンがAuthorizationヘッダーに付与されること", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if got := r.Header.Get("Authorization"); got != "Bearer my-token" {
				t.Errorf("Authorization: got %q, want %q", got, "Bearer my-token")
			}
			w.WriteHeader(http.StatusOK)
		}))
		t.Cleanup(server.Close)

		client := New(server.URL)
		client.SetBearerToken("my-token")
		if err := client.GetJSON(t.Context(), "/", nil); err != nil {
			t.Fatalf("GetJSONでエラーが発生: %v", err)
		}
	})

	t.Run("トークン未設定の場合はヘッダーを付与しないこと", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if got := r.Header.Get("Authorization"); got != "" {
				t.Errorf("Authorizationが付与されるべきではない: got %q", got)
			}
			w.WriteHeader(http.StatusOK)
		}))
		t.Cleanup(server.Close)

		client := New(server.URL)
		if err := client.GetJSON(t.Context(), "/", nil); err != nil {
			t.Fatalf("GetJSONでエラーが発生: %v", err)
		}
	})
}

// TestPutAndDelete はPUT/DELETEメソッドの送信を検証する。
func TestPutAndDelete(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"method": r.Method})
	}))
	t.Cleanup(server.Close)

	client := New(server.URL)

	var result map[string]string
	if err := client.PutJSON(t.Context(), "/notifications/notif-1/read", nil, &result); err != nil {
		t.Fatalf("PutJSONでエラーが発生: %v", err)
	}
	if result["method"] != http.MethodPut {
		t.Errorf("method: got %q, want PUT", result["method"])
	}

	if err := client.DeleteJSON(t.Context(), "/notifications/notif-1", &result); err != nil {
		t.Fatalf("DeleteJSONでエラーが発生: %v", err)
	}
	if result["method"] != http.MethodDelete {
		t.Errorf("method: got %q, want DELETE", result["method"])
	}
}
