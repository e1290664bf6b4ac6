package services

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Параметры захвата блокировки комнаты: ограниченный ретрай вместо
// бесконечного ожидания, жёсткий таймаут удержания для зависших держателей.
const (
	lockRetryInterval  = 50 * time.Millisecond
	lockAcquireTimeout = 1 * time.Second
	lockHoldTimeout    = 5 * time.Second
)

type roomLock struct {
	sem chan struct{}

	mu         sync.Mutex
	acquiredAt time.Time
	generation uint64
}

// RoomLocker — внутрипроцессная таблица блокировок по ID комнаты. Мутации
// одной комнаты сериализуются; разные комнаты друг другу не мешают.
// При работе в несколько процессов заменяется на распределённую блокировку
// с теми же таймаутами.
type RoomLocker struct {
	mu     sync.Mutex
	locks  map[int]*roomLock
	logger *slog.Logger
}

func NewRoomLocker(logger *slog.Logger) *RoomLocker {
	return &RoomLocker{
		locks:  make(map[int]*roomLock),
		logger: logger,
	}
}

func (l *RoomLocker) lockFor(roomID int) *roomLock {
	l.mu.Lock()
	defer l.mu.Unlock()
	lock, ok := l.locks[roomID]
	if !ok {
		lock = &roomLock{sem: make(chan struct{}, 1)}
		l.locks[roomID] = lock
	}
	return lock
}

// Acquire захватывает эксклюзивную блокировку комнаты. Возвращает функцию
// освобождения. Захват ретраится каждые lockRetryInterval и сдаётся после
// lockAcquireTimeout с ErrLockTimeout. Держатель, переживший lockHoldTimeout,
// принудительно снимается и логируется как ошибка — застрявший обработчик
// не должен заклинить комнату навсегда.
func (l *RoomLocker) Acquire(ctx context.Context, roomID int) (func(), error) {
	lock := l.lockFor(roomID)
	deadline := time.Now().Add(lockAcquireTimeout)

	for {
		select {
		case lock.sem <- struct{}{}:
			lock.mu.Lock()
			lock.acquiredAt = time.Now()
			lock.generation++
			gen := lock.generation
			lock.mu.Unlock()

			release := func() {
				lock.mu.Lock()
				defer lock.mu.Unlock()
				// Если держателя уже сняли принудительно, токен в семафоре
				// принадлежит следующему захватившему — не трогаем.
				if lock.generation != gen {
					return
				}
				lock.acquiredAt = time.Time{}
				select {
				case <-lock.sem:
				default:
				}
			}
			return release, nil
		default:
		}

		l.forceReleaseIfExpired(lock, roomID)

		if time.Now().After(deadline) {
			l.logger.Warn("room lock acquisition timed out", slog.Int("room_id", roomID))
			return nil, ErrLockTimeout
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(lockRetryInterval):
		}
	}
}

func (l *RoomLocker) forceReleaseIfExpired(lock *roomLock, roomID int) {
	lock.mu.Lock()
	defer lock.mu.Unlock()

	if lock.acquiredAt.IsZero() || time.Since(lock.acquiredAt) <= lockHoldTimeout {
		return
	}

	select {
	case <-lock.sem:
		l.logger.Error("room lock force-released after hold timeout",
			slog.Int("room_id", roomID),
			slog.Duration("held_for", time.Since(lock.acquiredAt)))
		lock.acquiredAt = time.Time{}
		lock.generation++
	default:
	}
}
