package push

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	webpush "github.com/SherClockHolmes/webpush-go"

	"github.com/chatter/internal/logger"
)

// VAPIDKeys — пара ключей для Web Push (VAPID).
type VAPIDKeys struct {
	PublicKey  string `json:"public_key"`
	PrivateKey string `json:"private_key"`
}

const defaultVAPIDKeysPath = "config/vapid.json"

// EnsureVAPIDKeys читает пару ключей из файла, при отсутствии генерирует новую
// и сохраняет её туда же. Путь: аргумент → env VAPID_KEYS_FILE → config/vapid.json.
// Сбой записи не фатален: сгенерированные ключи всё равно возвращаются, но
// после рестарта подписки браузеров станут недействительными.
func EnsureVAPIDKeys(path string) (*VAPIDKeys, error) {
	if path == "" {
		path = os.Getenv("VAPID_KEYS_FILE")
	}
	if path == "" {
		path = defaultVAPIDKeysPath
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		var keys VAPIDKeys
		if jerr := json.Unmarshal(data, &keys); jerr != nil {
			return nil, fmt.Errorf("push: vapid keys file %s: %w", path, jerr)
		}
		if keys.PublicKey != "" && keys.PrivateKey != "" {
			return &keys, nil
		}
		// Пустой или частичный файл — перегенерируем ниже.
	case !errors.Is(err, fs.ErrNotExist):
		return nil, fmt.Errorf("push: read vapid keys %s: %w", path, err)
	}

	pub, priv, err := webpush.GenerateVAPIDKeys()
	if err != nil {
		return nil, fmt.Errorf("push: generate vapid keys: %w", err)
	}
	keys := &VAPIDKeys{PublicKey: pub, PrivateKey: priv}

	if err := writeKeysFile(path, keys); err != nil {
		logger.Errorf("push: vapid keys not persisted to %s: %v", path, err)
		return keys, nil
	}
	logger.Infof("push: new vapid keys written to %s", path)
	return keys, nil
}

func writeKeysFile(path string, keys *VAPIDKeys) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(keys, "", "  ")
	if err != nil {
		return err
	}
	// Запись через временный файл: полузаписанный ключевой файл хуже отсутствующего.
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
