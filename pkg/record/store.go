package record

// Store keeps the current record for each kind. A single goroutine owns the
// map and serves reads and swaps over channels, so a reader always receives
// a complete record pointer and an upload replaces the slot wholesale.
// Records themselves are never mutated after construction, which makes the
// returned pointer a consistent snapshot even while a new upload lands.
type Store struct {
	get     chan getRequest
	replace chan replaceRequest
}

type getRequest struct {
	kind  Kind
	reply chan *ChannelRecord
}

type replaceRequest struct {
	rec   *ChannelRecord
	reply chan struct{}
}

// NewStore starts the owner goroutine. It runs for the process lifetime,
// matching how the server holds exactly one record per kind in memory.
func NewStore() *Store {
	s := &Store{
		get:     make(chan getRequest),
		replace: make(chan replaceRequest),
	}
	go s.run()
	return s
}

// Get returns the current record for the kind, or nil when nothing has been
// uploaded yet. The pointer stays valid and immutable after a later Replace.
func (s *Store) Get(kind Kind) *ChannelRecord {
	reply := make(chan *ChannelRecord, 1)
	s.get <- getRequest{kind: kind, reply: reply}
	return <-reply
}

// Replace installs rec as the record for its kind, dropping any previous
// one. Readers holding the old pointer keep a consistent snapshot.
func (s *Store) Replace(rec *ChannelRecord) {
	reply := make(chan struct{}, 1)
	s.replace <- replaceRequest{rec: rec, reply: reply}
	<-reply
}

func (s *Store) run() {
	records := make(map[Kind]*ChannelRecord, 3)

	for {
		select {
		case req := <-s.get:
			req.reply <- records[req.kind]
		case req := <-s.replace:
			records[req.rec.Kind] = req.rec
			req.reply <- struct{}{}
		}
	}
}
