package audit

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmsavelyev/chatvault/internal/messaging"
)

func testRecord(text string) *Record {
	return &Record{
		TS:         time.Now().UTC(),
		Direction:  messaging.DirectionIn,
		ClientID:   "79001112233",
		ConvoKey:   "dm_5511888",
		ChatID:     "5511888@c.us",
		PeerNumber: "5511888",
		Type:       "chat",
		Text:       text,
	}
}

func readLines(t *testing.T, path string) []string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var lines []string
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	require.NoError(t, sc.Err())
	return lines
}

func TestAppend_RoundTrip(t *testing.T) {
	cipher := testCipher(t)
	w := NewLogWriter(Dirs{Base: t.TempDir()}, cipher)

	require.NoError(t, w.Append("79001112233", "dm_5511888", testRecord("hello")))
	require.NoError(t, w.Append("79001112233", "dm_5511888", testRecord("world")))

	lines := readLines(t, w.FilePath("79001112233", "dm_5511888"))
	require.Len(t, lines, 2)

	var texts []string
	for _, line := range lines {
		plaintext, err := cipher.OpenString(line)
		require.NoError(t, err)

		var rec Record
		require.NoError(t, json.Unmarshal([]byte(plaintext), &rec))
		texts = append(texts, rec.Text)
	}
	assert.Equal(t, []string{"hello", "world"}, texts)
}

func TestAppend_DistinctKeysDistinctFiles(t *testing.T) {
	w := NewLogWriter(Dirs{Base: t.TempDir()}, testCipher(t))

	require.NoError(t, w.Append("79001112233", "dm_5511888", testRecord("a")))
	require.NoError(t, w.Append("79001112233", "group_123-456", testRecord("b")))
	require.NoError(t, w.Append("79004445566", "dm_5511888", testRecord("c")))

	keys, err := w.List("79001112233")
	require.NoError(t, err)
	assert.Equal(t, []string{"dm_5511888", "group_123-456"}, keys)

	keys, err = w.List("79004445566")
	require.NoError(t, err)
	assert.Equal(t, []string{"dm_5511888"}, keys)
}

func TestAppend_ConcurrentSameFile(t *testing.T) {
	cipher := testCipher(t)
	w := NewLogWriter(Dirs{Base: t.TempDir()}, cipher)

	const writers = 8
	const perWriter = 25

	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < perWriter; j++ {
				rec := testRecord(fmt.Sprintf("w%d-%d", i, j))
				assert.NoError(t, w.Append("79001112233", "dm_5511888", rec))
			}
		}(i)
	}
	wg.Wait()

	// every line must decrypt cleanly: no interleaved or torn writes
	lines := readLines(t, w.FilePath("79001112233", "dm_5511888"))
	require.Len(t, lines, writers*perWriter)
	for _, line := range lines {
		_, err := cipher.OpenString(line)
		require.NoError(t, err)
	}
}

func TestList_MissingIdentity(t *testing.T) {
	w := NewLogWriter(Dirs{Base: t.TempDir()}, testCipher(t))

	keys, err := w.List("none")
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestListIdentities(t *testing.T) {
	w := NewLogWriter(Dirs{Base: t.TempDir()}, testCipher(t))

	ids, err := w.ListIdentities()
	require.NoError(t, err)
	assert.Empty(t, ids)

	require.NoError(t, w.Append("79001112233", "dm_a", testRecord("x")))
	require.NoError(t, w.Append("79004445566", "dm_b", testRecord("y")))

	ids, err = w.ListIdentities()
	require.NoError(t, err)
	assert.Equal(t, []string{"79001112233", "79004445566"}, ids)
}

func TestFilePath_Sanitized(t *testing.T) {
	base := t.TempDir()
	w := NewLogWriter(Dirs{Base: base}, testCipher(t))

	path := w.FilePath("../evil", "dm_../../x")
	assert.NotContains(t, path, ".."+string(os.PathSeparator))
}
