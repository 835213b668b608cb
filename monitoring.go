package ss

type BucketStats struct {
	Keys  int
	Size  int64
	Alloc int64
}

func makeBucketStats(bs bucketStats) BucketStats {
	return BucketStats{Keys: bs.KeyN, Size: bs.LeafInuse, Alloc: bs.TotalAlloc()}
}

type TxStats struct {
	Readers int64
	Writers int64
	Reads   uint64
	Writes  uint64
}

func (tt *txTracker) stats() TxStats {
	return TxStats{
		Readers: tt.ReaderCount.Load(),
		Writers: tt.WriterCount.Load(),
		Reads:   tt.ReadCount.Load(),
		Writes:  tt.WriteCount.Load(),
	}
}

type DBStats struct {
	Log   BucketStats
	Heads BucketStats
	Tx    TxStats
	Size  int64
}

func (s *DBStats) TotalAlloc() int64 {
	return s.Log.Alloc + s.Heads.Alloc
}

func (db *DB) Stats() (DBStats, error) {
	var s DBStats
	err := db.tt.read(db.stor, func(stx storageTx) error {
		s.Log = makeBucketStats(nonNil(stx.Bucket(logBucket)).Stats())
		s.Heads = makeBucketStats(nonNil(stx.Bucket(headsBucket)).Stats())
		s.Size = stx.Size()
		return nil
	})
	s.Tx = db.tt.stats()
	return s, err
}

type ViewStats struct {
	Rows          BucketStats
	Docs          BucketStats
	HighWaterMark uint64
	Tx            TxStats
	Size          int64
}

func (v *View) Stats() (ViewStats, error) {
	var s ViewStats
	err := v.tt.read(v.stor, func(stx storageTx) error {
		st, err := readViewState(stx)
		if err != nil {
			return err
		}
		s.HighWaterMark = st.HighWaterMark
		s.Rows = makeBucketStats(nonNil(stx.Bucket(rowsBucket)).Stats())
		s.Docs = makeBucketStats(nonNil(stx.Bucket(docsBucket)).Stats())
		s.Size = stx.Size()
		return nil
	})
	s.Tx = v.tt.stats()
	return s, err
}
