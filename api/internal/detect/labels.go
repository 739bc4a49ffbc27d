package detect

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// Labels — упорядоченная таблица классов модели. После загрузки не меняется.
type Labels []string

// LoadLabels читает файл меток: одна метка на строку, порядок = индекс выхода модели.
func LoadLabels(path string) (Labels, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open labels %s: %w", path, err)
	}
	defer file.Close()

	var lines Labels
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		lines = append(lines, strings.TrimRight(scanner.Text(), "\r"))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read labels %s: %w", path, err)
	}
	if len(lines) == 0 {
		return nil, fmt.Errorf("labels %s: empty file", path)
	}
	return lines, nil
}

// At возвращает метку по индексу; ok=false, если индекс вне таблицы.
func (l Labels) At(i int) (string, bool) {
	if i < 0 || i >= len(l) {
		return "", false
	}
	return l[i], true
}
