package tokenstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

const (
	credentialDirectoryNameConstant        = "ghpages"
	credentialFileNameConstant             = "credentials.json"
	credentialDirectoryPermissionsConstant = 0o700
	credentialFilePermissionsConstant      = 0o600
	credentialPathMissingMessageConstant   = "credential file path not configured"
	credentialReadTemplateConstant         = "unable to read credential file %s: %w"
	credentialWriteTemplateConstant        = "unable to write credential file %s: %w"
	credentialDecodeTemplateConstant       = "unable to decode credential file %s: %w"
)

// ErrCredentialFilePathNotConfigured indicates the storage was constructed without a path.
var ErrCredentialFilePathNotConfigured = errors.New(credentialPathMissingMessageConstant)

// FileCredentialStorage keeps named records in a single JSON file with
// owner-only permissions.
type FileCredentialStorage struct {
	credentialFilePath string
}

// NewFileCredentialStorage validates the path and builds a file-backed storage.
func NewFileCredentialStorage(credentialFilePath string) (*FileCredentialStorage, error) {
	if len(credentialFilePath) == 0 {
		return nil, ErrCredentialFilePathNotConfigured
	}
	return &FileCredentialStorage{credentialFilePath: credentialFilePath}, nil
}

// DefaultCredentialFilePath resolves the credential file location under the
// user configuration directory.
func DefaultCredentialFilePath() (string, error) {
	configurationDirectory, configurationDirectoryError := os.UserConfigDir()
	if configurationDirectoryError != nil {
		return "", configurationDirectoryError
	}
	return filepath.Join(configurationDirectory, credentialDirectoryNameConstant, credentialFileNameConstant), nil
}

// ReadRecord returns the stored value for the key when present.
func (storage *FileCredentialStorage) ReadRecord(recordKey string) (string, bool, error) {
	storedRecords, loadError := storage.loadRecords()
	if loadError != nil {
		return "", false, loadError
	}
	recordValue, recordFound := storedRecords[recordKey]
	return recordValue, recordFound, nil
}

// WriteRecord stores the value under the key, creating the file and its
// directory on first use.
func (storage *FileCredentialStorage) WriteRecord(recordKey string, recordValue string) error {
	storedRecords, loadError := storage.loadRecords()
	if loadError != nil {
		return loadError
	}
	storedRecords[recordKey] = recordValue
	return storage.saveRecords(storedRecords)
}

// DeleteRecord removes the key; deleting an absent key succeeds.
func (storage *FileCredentialStorage) DeleteRecord(recordKey string) error {
	storedRecords, loadError := storage.loadRecords()
	if loadError != nil {
		return loadError
	}
	if _, recordFound := storedRecords[recordKey]; !recordFound {
		return nil
	}
	delete(storedRecords, recordKey)
	return storage.saveRecords(storedRecords)
}

func (storage *FileCredentialStorage) loadRecords() (map[string]string, error) {
	fileContents, readError := os.ReadFile(storage.credentialFilePath)
	if readError != nil {
		if errors.Is(readError, os.ErrNotExist) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf(credentialReadTemplateConstant, storage.credentialFilePath, readError)
	}
	storedRecords := map[string]string{}
	if len(fileContents) == 0 {
		return storedRecords, nil
	}
	if decodeError := json.Unmarshal(fileContents, &storedRecords); decodeError != nil {
		return nil, fmt.Errorf(credentialDecodeTemplateConstant, storage.credentialFilePath, decodeError)
	}
	return storedRecords, nil
}

func (storage *FileCredentialStorage) saveRecords(storedRecords map[string]string) error {
	encodedRecords, encodeError := json.MarshalIndent(storedRecords, "", "  ")
	if encodeError != nil {
		return fmt.Errorf(credentialWriteTemplateConstant, storage.credentialFilePath, encodeError)
	}
	credentialDirectory := filepath.Dir(storage.credentialFilePath)
	if directoryError := os.MkdirAll(credentialDirectory, credentialDirectoryPermissionsConstant); directoryError != nil {
		return fmt.Errorf(credentialWriteTemplateConstant, storage.credentialFilePath, directoryError)
	}
	if writeError := os.WriteFile(storage.credentialFilePath, encodedRecords, credentialFilePermissionsConstant); writeError != nil {
		return fmt.Errorf(credentialWriteTemplateConstant, storage.credentialFilePath, writeError)
	}
	return nil
}
