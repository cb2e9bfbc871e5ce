package tokenstore

import (
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	loggerMissingMessageConstant            = "logger not configured"
	credentialStorageMissingMessageConstant = "credential storage not configured"
	tokenRecordKeyConstant                  = "github_access_token"
	persistFailureMessageConstant           = "Unable to persist access token"
	persistRemoveFailureMessageConstant     = "Unable to remove persisted access token"
	loadFailureMessageConstant              = "Unable to load persisted access token"
)

// ErrLoggerNotConfigured indicates the store was constructed without a logger.
var ErrLoggerNotConfigured = errors.New(loggerMissingMessageConstant)

// ErrCredentialStorageNotConfigured indicates the store was constructed without storage.
var ErrCredentialStorageNotConfigured = errors.New(credentialStorageMissingMessageConstant)

// AccessToken carries a GitHub OAuth token together with its granted scopes.
type AccessToken struct {
	Token    string    `json:"token"`
	Scopes   []string  `json:"scopes"`
	CachedAt time.Time `json:"cached_at"`
}

// CredentialStorage persists small named records across process invocations.
type CredentialStorage interface {
	ReadRecord(recordKey string) (string, bool, error)
	WriteRecord(recordKey string, recordValue string) error
	DeleteRecord(recordKey string) error
}

// Store layers an in-memory token cache over a persistent credential storage.
// The in-memory tier is authoritative for the current process; persistence
// failures are logged and never fail the call.
type Store struct {
	logger            *zap.Logger
	credentialStorage CredentialStorage
	mutex             sync.Mutex
	cachedToken       *AccessToken
}

// NewStore validates dependencies and builds a token store.
func NewStore(logger *zap.Logger, credentialStorage CredentialStorage) (*Store, error) {
	if logger == nil {
		return nil, ErrLoggerNotConfigured
	}
	if credentialStorage == nil {
		return nil, ErrCredentialStorageNotConfigured
	}
	return &Store{logger: logger, credentialStorage: credentialStorage}, nil
}

// Save records the token in memory and mirrors it to persistent storage.
func (store *Store) Save(accessToken AccessToken) {
	store.mutex.Lock()
	tokenCopy := accessToken
	store.cachedToken = &tokenCopy
	store.mutex.Unlock()

	serializedToken, serializationError := marshalAccessToken(accessToken)
	if serializationError != nil {
		store.logger.Warn(persistFailureMessageConstant, zap.Error(serializationError))
		return
	}
	if writeError := store.credentialStorage.WriteRecord(tokenRecordKeyConstant, serializedToken); writeError != nil {
		store.logger.Warn(persistFailureMessageConstant, zap.Error(writeError))
	}
}

// Lookup returns the cached token, falling back to persistent storage when the
// in-memory tier is empty. The second return value reports whether a token was
// found.
func (store *Store) Lookup() (AccessToken, bool) {
	store.mutex.Lock()
	if store.cachedToken != nil {
		cachedToken := *store.cachedToken
		store.mutex.Unlock()
		return cachedToken, true
	}
	store.mutex.Unlock()

	serializedToken, recordFound, readError := store.credentialStorage.ReadRecord(tokenRecordKeyConstant)
	if readError != nil {
		store.logger.Warn(loadFailureMessageConstant, zap.Error(readError))
		return AccessToken{}, false
	}
	if !recordFound {
		return AccessToken{}, false
	}
	persistedToken, deserializationError := unmarshalAccessToken(serializedToken)
	if deserializationError != nil {
		store.logger.Warn(loadFailureMessageConstant, zap.Error(deserializationError))
		return AccessToken{}, false
	}

	store.mutex.Lock()
	store.cachedToken = &persistedToken
	store.mutex.Unlock()
	return persistedToken, true
}

// Clear removes the token from both tiers. Clearing an empty store succeeds.
func (store *Store) Clear() {
	store.mutex.Lock()
	store.cachedToken = nil
	store.mutex.Unlock()

	if deleteError := store.credentialStorage.DeleteRecord(tokenRecordKeyConstant); deleteError != nil {
		store.logger.Warn(persistRemoveFailureMessageConstant, zap.Error(deleteError))
	}
}
