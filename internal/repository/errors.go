package repository

import "errors"

var (
	ErrNotFound = errors.New("not found")

	// ErrDuplicate — нарушение unique constraint (ключ идемпотентности).
	ErrDuplicate = errors.New("duplicate")

	// ErrStatusConflict — CAS-обновление статуса не прошло: строка уже не в
	// ожидаемом статусе. Используется как claim при конкурентных воркерах и
	// как оптимистическая проверка при реконсиляции.
	ErrStatusConflict = errors.New("status conflict")
)
