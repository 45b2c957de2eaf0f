package transport

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCloneIsIndependent(t *testing.T) {
	b := NewResponseBuilder().
		SetStatus(http.StatusAccepted).
		SetHeader("X-Test", "1").
		SetBody([]byte("abc"))

	c := b.Clone()
	c.SetHeader("X-Test", "2")
	c.Body()[0] = 'z'
	c.SetStatus(http.StatusTeapot)

	assert.Equal(t, http.StatusAccepted, b.Status())
	assert.Equal(t, "1", b.Header().Get("X-Test"))
	assert.Equal(t, "abc", string(b.Body()))
	assert.Equal(t, "zbc", string(c.Body()))
}

func TestSend(t *testing.T) {
	b := NewResponseBuilder().
		SetHeader("Content-Type", "application/json").
		SetBody([]byte(`{"id":"1"}`))

	rec := httptest.NewRecorder()
	require.NoError(t, b.Send(rec))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, "10", rec.Header().Get("Content-Length"))
	assert.Equal(t, `{"id":"1"}`, rec.Body.String())
}

func TestSendNoContent(t *testing.T) {
	b := NewResponseBuilder().SetStatus(http.StatusNoContent).SetBody([]byte("ignored"))

	rec := httptest.NewRecorder()
	require.NoError(t, b.Send(rec))

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, rec.Body.String())
}
