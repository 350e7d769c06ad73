package startup

import (
	"os"
	"time"

	"github.com/chatter/internal/logger"
)

// retry крутит attempt с экспоненциальной паузой (2s → 30s), пока тот не
// вернёт nil. По истечении maxWait процесс завершается: без зависимостей
// сервису делать нечего, оркестратор перезапустит.
func retry(what, logPrefix string, maxWait time.Duration, attempt func() error) {
	deadline := time.Now().Add(maxWait)
	backoff := 2 * time.Second
	for {
		err := attempt()
		if err == nil {
			return
		}
		if time.Now().After(deadline) {
			logger.Errorf("%s%s (gave up after %v): %v", logPrefix, what, maxWait, err)
			os.Exit(1)
		}
		logger.Errorf("%s%s failed, retry in %v: %v", logPrefix, what, backoff, err)
		time.Sleep(backoff)
		if backoff < 30*time.Second {
			backoff *= 2
		}
	}
}
