package factory

import (
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/mcoot/wordquizzle/internal/config"
	"github.com/mcoot/wordquizzle/internal/dependencies/mocks"
	"github.com/mcoot/wordquizzle/internal/match"
	"github.com/mcoot/wordquizzle/internal/storage/memory"
	"github.com/mcoot/wordquizzle/internal/testutil"
)

// TestApp extends App with test-specific helpers
type TestApp struct {
	*App

	// Mocks for test control
	MockClock  *mocks.MockClock
	MockRandom *mocks.MockRandom
	Memory     *memory.Storage
	Dictionary *match.Dictionary
}

// TestConfig returns a configuration bound to ephemeral loopback ports
func TestConfig() config.Config {
	cfg := config.Default()
	cfg.TCP.Addr = "127.0.0.1:0"
	cfg.UDP.Addr = "127.0.0.1:0"
	cfg.UDP.ReceiveTimeout = 50 * time.Millisecond
	cfg.HTTP.Addr = "127.0.0.1:0"
	cfg.Registry.BcryptCost = bcrypt.MinCost
	cfg.Storage.Type = config.StorageMemory
	cfg.Workers = 4
	return cfg
}

// NewTestApp creates an App configured for testing with mocked clock and
// randomness and the reference match engine over the built in dictionary.
// Words are drawn in dictionary order.
func NewTestApp(cfg config.Config) *TestApp {
	store := memory.New()
	mockClock := mocks.NewMockClock(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC))
	mockRandom := mocks.NewMockRandom()

	dict := match.NewDictionary()
	if err := dict.LoadPairs(match.DefaultPairs); err != nil {
		panic(err)
	}
	logger := testutil.NopLogger()
	engine := match.NewService(cfg.Match.Engine, dict, mockClock, mockRandom, logger)

	app := newWithDependencies(cfg, store, mockClock, mockRandom, engine, logger)

	return &TestApp{
		App:        app,
		MockClock:  mockClock,
		MockRandom: mockRandom,
		Memory:     store,
		Dictionary: dict,
	}
}

// Translation returns the expected answer for a word of the dictionary
func (t *TestApp) Translation(word string) string {
	for i := range t.Dictionary.Len() {
		if p := t.Dictionary.At(i); p.Source == word {
			return p.Target
		}
	}
	return ""
}
