package risk

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errMissing = errors.New("missing")

type memStore struct {
	mu    sync.Mutex
	blobs map[string][]byte
	fail  error
}

func newMemStore() *memStore {
	return &memStore{blobs: map[string][]byte{}}
}

func (s *memStore) SaveModel(_ context.Context, name string, blob []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return s.fail
	}
	s.blobs[name] = blob
	return nil
}

func (s *memStore) LoadModel(_ context.Context, name string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.blobs[name]
	if !ok {
		return nil, errMissing
	}
	return b, nil
}

func TestCodec_RoundTrip(t *testing.T) {
	e := trainedEngine(t)
	blob, err := Marshal(e.Model())
	require.NoError(t, err)
	assert.Equal(t, "RSKM", string(blob[:4]))

	m, err := Unmarshal(blob)
	require.NoError(t, err)
	assert.Equal(t, e.Model().ID, m.ID)
	assert.True(t, e.Model().CreatedAt.Equal(m.CreatedAt))
	assert.Equal(t, e.Model().Classifier.Classes, m.Classifier.Classes)
	assert.Equal(t, e.Model().Anomaly.Offset, m.Anomaly.Offset)
}

func TestCodec_Corrupt(t *testing.T) {
	e := trainedEngine(t)
	blob, err := Marshal(e.Model())
	require.NoError(t, err)

	tests := []struct {
		name string
		blob []byte
	}{
		{"empty", nil},
		{"bad magic", append([]byte("XXXX"), blob[4:]...)},
		{"bad version", append(append([]byte("RSKM"), 9), blob[5:]...)},
		{"truncated", blob[:len(blob)/2]},
		{"garbage payload", append([]byte("RSKM\x01"), []byte("not zstd at all")...)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Unmarshal(tt.blob)
			assert.ErrorIs(t, err, ErrPersistence)
		})
	}

	_, err = Marshal(nil)
	assert.ErrorIs(t, err, ErrPersistence)
}

func TestModel_ValidateInconsistent(t *testing.T) {
	e := trainedEngine(t)
	src := e.Model()

	scaler := *src.Scaler
	scaler.Mean = scaler.Mean[:len(scaler.Mean)-1]
	scaler.Std = scaler.Std[:len(scaler.Std)-1]
	broken := *src
	broken.Scaler = &scaler
	assert.ErrorIs(t, broken.Validate(), ErrModelInconsistency)

	blob, err := Marshal(&broken)
	require.NoError(t, err)
	_, err = Unmarshal(blob)
	assert.ErrorIs(t, err, ErrModelInconsistency)

	badClasses := *src
	cls := *src.Classifier
	cls.Classes = []int{0, 1, 2, 7}
	badClasses.Classifier = &cls
	assert.ErrorIs(t, badClasses.Validate(), ErrModelInconsistency)

	assert.Error(t, NewEngine(testConfig()).Publish(&broken))
}

func TestEngine_SaveLoadScoresIdentically(t *testing.T) {
	src := trainedEngine(t)
	store := newMemStore()
	require.NoError(t, src.Save(context.Background(), store, "default"))

	dst := NewEngine(testConfig())
	require.NoError(t, dst.Load(context.Background(), store, "default"))
	assert.Equal(t, src.Model().ID, dst.Model().ID)

	for _, raw := range sampleEntities(100) {
		want, err := src.Predict(raw)
		require.NoError(t, err)
		got, err := dst.Predict(raw)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestEngine_LoadMissing(t *testing.T) {
	e := NewEngine(testConfig())
	err := e.Load(context.Background(), newMemStore(), "nope")
	assert.ErrorIs(t, err, ErrPersistence)
	assert.ErrorIs(t, err, errMissing)
	assert.False(t, e.Trained())
}

func TestEngine_SaveFailure(t *testing.T) {
	store := newMemStore()
	store.fail = errors.New("disk full")
	err := trainedEngine(t).Save(context.Background(), store, "default")
	assert.ErrorIs(t, err, ErrPersistence)
}

func TestEngine_LoadOrTrain(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()

	e := NewEngine(testConfig())
	report, err := e.LoadOrTrain(ctx, store, "default")
	require.NoError(t, err)
	require.NotNil(t, report)
	require.True(t, e.Trained())
	assert.Contains(t, store.blobs, "default")

	again := NewEngine(testConfig())
	report, err = again.LoadOrTrain(ctx, store, "default")
	require.NoError(t, err)
	assert.Nil(t, report)
	assert.Equal(t, e.Model().ID, again.Model().ID)
}

func TestEngine_LoadOrTrainCorrupt(t *testing.T) {
	store := newMemStore()
	store.blobs["default"] = []byte("RSKM\x01junk")

	e := NewEngine(testConfig())
	report, err := e.LoadOrTrain(context.Background(), store, "default")
	require.NoError(t, err)
	require.NotNil(t, report)
	assert.True(t, e.Trained())

	_, err = Unmarshal(store.blobs["default"])
	assert.NoError(t, err)
}

func TestEngine_LoadOrTrainSaveFails(t *testing.T) {
	store := newMemStore()
	store.fail = errors.New("read only")

	e := NewEngine(testConfig())
	report, err := e.LoadOrTrain(context.Background(), store, "default")
	assert.ErrorIs(t, err, ErrPersistence)
	assert.NotNil(t, report)
	assert.True(t, e.Trained())
}
