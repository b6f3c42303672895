package domain

import "errors"

// ErrConfiguration — базовая ошибка некорректной конфигурации.
// Все ошибки конфигурации (конфликт путей, неизвестный плейсхолдер,
// неразборчивый размер) оборачивают её и проверяются через errors.Is.
var ErrConfiguration = errors.New("configuration error")
