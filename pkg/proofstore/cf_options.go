package proofstore

import "github.com/tecbot/gorocksdb"

// buildColumnFamilyOptions returns one gorocksdb.Options per entry in
// cfNames, in the same order. Every family uses ZSTD block
// compression, the shared LRU block cache and a 10-bit bloom filter.
// pruned_blocks/pivot_blocks/transactions/signatures add blob-file
// separation for values ≥32 KiB; state additionally uses a hash-search
// index, a memtable prefix bloom and filters optimized for hits. No
// data-block hash index or whole-key memtable filtering is configured.
func buildColumnFamilyOptions(cache *gorocksdb.Cache) []*gorocksdb.Options {
	opts := make([]*gorocksdb.Options, len(cfNames))
	for i, name := range cfNames {
		o := gorocksdb.NewDefaultOptions()
		o.SetCompression(gorocksdb.ZSTDCompression)

		bbto := gorocksdb.NewDefaultBlockBasedTableOptions()
		bbto.SetBlockCache(cache)
		bbto.SetFilterPolicy(gorocksdb.NewBloomFilter(10))

		switch name {
		case cfPrunedBlocks, cfPivotBlocks, cfTransactions, cfSignatures:
			o.SetEnableBlobFiles(true)
			o.SetMinBlobSize(32 * 1024)
		case cfState:
			bbto.SetIndexType(gorocksdb.KHashSearchIndexType)
			o.SetBlockBasedTableFactory(bbto)
			o.SetMemtablePrefixBloomSizeRatio(0.1)
			o.SetOptimizeFiltersForHits(true)
			opts[i] = o
			continue
		}
		o.SetBlockBasedTableFactory(bbto)
		opts[i] = o
	}
	return opts
}
