package main

import (
	"dcatrader/internal/credentials"
	"dcatrader/internal/logger"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
)

// creds encrypts the plaintext key/secret pair into the files the bot reads at startup.
func main() {
	dir := pflag.StringP("dir", "d", ".", "каталог с ключами")
	keyFile := pflag.String("key-file", credentials.KeyFile, "файл с именем ключа API")
	secretFile := pflag.String("secret-file", credentials.SecretFile, "файл с приватным ключом")
	removePlain := pflag.Bool("remove-plain", false, "удалить открытые файлы после шифрования")
	pflag.Parse()

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		panic(err)
	}

	logger := logger.New(logger.Config{Level: "info", Format: "text", Output: "stdout"})

	keyPath := resolve(*dir, *keyFile)
	secretPath := resolve(*dir, *secretFile)

	key, err := os.ReadFile(keyPath)
	if err != nil {
		logger.WithError(err).Fatal("Не удалось прочитать файл ключа.")
	}
	secret, err := os.ReadFile(secretPath)
	if err != nil {
		logger.WithError(err).Fatal("Не удалось прочитать файл секрета.")
	}

	creds := credentials.Credentials{
		KeyName: strings.TrimSpace(string(key)),
		Secret:  strings.TrimSpace(string(secret)),
	}
	passphrase := os.Getenv(credentials.PassphraseEnv)
	if err := credentials.Save(*dir, passphrase, creds); err != nil {
		logger.WithError(err).Fatal(fmt.Sprintf("Не удалось зашифровать ключи (пароль берётся из %s).", credentials.PassphraseEnv))
	}
	logger.WithFields(map[string]interface{}{
		"dir":  *dir,
		"file": credentials.EncryptedFile,
	}).Info("Ключи зашифрованы.")

	if *removePlain {
		for _, p := range []string{keyPath, secretPath} {
			if err := os.Remove(p); err != nil {
				logger.WithError(err).WithField("path", p).Warn("Не удалось удалить открытый файл.")
			}
		}
	}
}

func resolve(dir, name string) string {
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(dir, name)
}
