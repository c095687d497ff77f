package services

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// FileStorage описывает внешнее хранилище байтов файлов
type FileStorage interface {
	// Save сохраняет содержимое файла и возвращает относительный путь внутри хранилища
	Save(dir, filename string, data []byte) (string, error)
	// Delete удаляет файл по относительному пути
	Delete(relPath string) error
	// FullPath возвращает абсолютный путь файла
	FullPath(relPath string) string
}

// LocalFileStorage сохраняет файлы на локальный диск
type LocalFileStorage struct {
	Root string
}

// NewLocalFileStorage создает хранилище с указанным корневым каталогом
func NewLocalFileStorage(root string) *LocalFileStorage {
	return &LocalFileStorage{Root: root}
}

// Save сохраняет файл в каталог dir под уникальным именем
func (s *LocalFileStorage) Save(dir, filename string, data []byte) (string, error) {
	targetDir := filepath.Join(s.Root, dir)
	if err := os.MkdirAll(targetDir, 0o755); err != nil {
		return "", fmt.Errorf("ошибка при создании каталога %s: %w", targetDir, err)
	}

	// Уникальный суффикс исключает коллизии на диске при совпадении имен
	ext := filepath.Ext(filename)
	base := filename[:len(filename)-len(ext)]
	unique := fmt.Sprintf("%s_%s%s", base, uuid.New().String()[:8], ext)

	relPath := filepath.Join(dir, unique)
	if err := os.WriteFile(filepath.Join(s.Root, relPath), data, 0o644); err != nil {
		return "", fmt.Errorf("ошибка при записи файла %s: %w", relPath, err)
	}
	return relPath, nil
}

// Delete удаляет файл из хранилища
func (s *LocalFileStorage) Delete(relPath string) error {
	return os.Remove(filepath.Join(s.Root, relPath))
}

// FullPath возвращает абсолютный путь файла
func (s *LocalFileStorage) FullPath(relPath string) string {
	return filepath.Join(s.Root, relPath)
}

// MetadataExtractor извлекает метаданные из содержимого файла, когда
// они не переданы явно
type MetadataExtractor interface {
	RecordingTime(filename string, data []byte) (*time.Time, error)
}

// FilenameMetadataExtractor извлекает время записи из имени файла
// (формат аудиорекордеров: 2006-01-02T15_04_05)
type FilenameMetadataExtractor struct{}

// RecordingTime пытается разобрать время записи из имени файла
func (e *FilenameMetadataExtractor) RecordingTime(filename string, data []byte) (*time.Time, error) {
	ext := filepath.Ext(filename)
	base := filename[:len(filename)-len(ext)]

	for _, layout := range []string{"2006-01-02T15_04_05", "20060102_150405", "2006-01-02"} {
		if len(base) >= len(layout) {
			if dt, err := time.Parse(layout, base[:len(layout)]); err == nil {
				utc := dt.UTC()
				return &utc, nil
			}
		}
	}
	return nil, fmt.Errorf("не удалось извлечь время записи из имени файла %s", filename)
}
