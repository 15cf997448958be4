package store

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ai "github.com/spetersoncode/loom"
)

func TestMessageStore_Append(t *testing.T) {
	ms := NewMessageStore(nil)
	assert.Equal(t, 0, ms.Len())

	ms.Append(ai.NewUserText("Hello"))
	assert.Equal(t, 1, ms.Len())

	ms.Append(ai.NewAssistantMessage(ai.NewTextPart("Hi there")), ai.NewUserText("How are you?"))
	assert.Equal(t, 3, ms.Len())

	ms.Append()
	assert.Equal(t, 3, ms.Len())
}

func TestMessageStore_CopyOut(t *testing.T) {
	ms := NewMessageStore(nil)
	ms.Append(ai.NewUserText("Hello"), ai.NewUserText("Hi"))

	messages := ms.Messages()
	messages[0] = ai.NewUserText("Modified")
	assert.Equal(t, "Hello", ms.Messages()[0].Text())
}

func TestMessageStore_CopyIn(t *testing.T) {
	initial := []ai.Message{ai.NewUserText("Hello")}
	ms := NewMessageStoreFrom(initial, nil)

	initial[0] = ai.NewUserText("Modified")
	assert.Equal(t, "Hello", ms.Messages()[0].Text())
}

func TestMessageStore_Last(t *testing.T) {
	ms := NewMessageStoreFrom([]ai.Message{
		ai.NewUserText("1"), ai.NewUserText("2"), ai.NewUserText("3"),
	}, nil)

	assert.Nil(t, ms.Last(0))
	assert.Len(t, ms.Last(2), 2)
	assert.Equal(t, "2", ms.Last(2)[0].Text())
	assert.Len(t, ms.Last(10), 3)
}

func TestMessageStore_SyncReload(t *testing.T) {
	ctx := context.Background()
	db, err := OpenSQLite(ctx, filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	defer db.Close()

	call := ai.ToolCall{ID: "c1", Name: "add", Input: []byte(`{"a":1}`)}
	ms1 := NewMessageStore(db)
	ms1.Append(
		ai.NewUserText("Hello"),
		ai.NewAssistantMessage(ai.NewTextPart("Let me add"), ai.NewToolCallPart(call)),
		ai.NewToolMessage(ai.ToolResult{ToolCallID: "c1", ToolName: "add", Output: []byte(`1`)}),
	)
	require.NoError(t, ms1.Sync(ctx, "conversation"))

	ms2 := NewMessageStore(db)
	require.NoError(t, ms2.Reload(ctx, "conversation"))

	messages := ms2.Messages()
	require.Len(t, messages, 3)
	assert.Equal(t, ai.RoleUser, messages[0].Role)
	assert.Equal(t, "Hello", messages[0].Text())
	require.Len(t, messages[1].ToolCalls(), 1)
	assert.Equal(t, "add", messages[1].ToolCalls()[0].Name)
	assert.JSONEq(t, `{"a":1}`, string(messages[1].ToolCalls()[0].Input))
	assert.Equal(t, "c1", messages[2].ToolResults()[0].ToolCallID)
}

func TestMessageStore_ReloadNotFound(t *testing.T) {
	err := NewMessageStore(nil).Reload(context.Background(), "nonexistent")
	assert.ErrorIs(t, err, ErrKeyNotFound)
}

func TestMessageStore_Concurrent(t *testing.T) {
	ms := NewMessageStore(nil)
	var wg sync.WaitGroup

	for range 100 {
		wg.Go(func() {
			ms.Append(ai.NewUserText("msg"))
		})
		wg.Go(func() {
			_ = ms.Messages()
		})
	}

	wg.Wait()
	assert.Equal(t, 100, ms.Len())
}
