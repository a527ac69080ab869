package http

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestClientSendAndParse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Content-Type") != "application/json" {
			w.WriteHeader(http.StatusUnsupportedMediaType)
			return
		}
		if r.URL.Path == "/bad" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"detail":"Unsupported coin: doge"}`))
			return
		}
		_, _ = w.Write([]byte(`{"prediction":[1.5]}`))
	}))
	defer srv.Close()

	c := NewClient(WithTimeout(time.Second))
	var out struct {
		Prediction []float64 `json:"prediction"`
	}
	err := c.SendAndParse(context.Background(), &RequestOptions{
		Method: MethodPost,
		URL:    srv.URL + "/ok",
		Body:   map[string]interface{}{"prices": []float64{1}},
	}, &out)
	if err != nil || len(out.Prediction) != 1 || out.Prediction[0] != 1.5 {
		t.Fatalf("out=%v err=%v", out, err)
	}

	err = c.SendAndParse(context.Background(), &RequestOptions{Method: MethodPost, URL: srv.URL + "/bad", Body: "{}"}, nil)
	var se *StatusError
	if !errors.As(err, &se) || se.StatusCode != http.StatusBadRequest || se.Detail() != "Unsupported coin: doge" {
		t.Fatalf("err = %v", err)
	}
}
