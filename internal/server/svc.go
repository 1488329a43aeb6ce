package server

// ChanSvc serializes work submitted from several goroutines.
type ChanSvc chan func()

// Svc queues code without blocking the caller. Work queued after done is
// closed is dropped.
func Svc(s ChanSvc, done <-chan struct{}, code func()) {
	go func() { // using a goroutine so the channel won't block
		select {
		case s <- code:
		case <-done:
		}
	}()
}

// RunSvc runs queued work until done is closed.
func RunSvc(s ChanSvc, done <-chan struct{}) {
	go func() {
		for {
			select {
			case cmd := <-s:
				cmd()
			case <-done:
				return
			}
		}
	}()
}
