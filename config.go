package depot

import (
	"os"
	"runtime"
	"time"

	"github.com/JeremyLoy/config"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// Config holds the tunables for a registry and every subsystem it owns.
type Config struct {
	// ThreadSafe guards every structural transition with a registry-wide
	// lock and turns on the query cache mutex.
	ThreadSafe bool `yaml:"thread_safe"`
	// Concurrency bounds the goroutines started by ParallelEach.
	Concurrency int `yaml:"concurrency"`

	SparseSet  SparseSetConfig  `yaml:"sparse_set"`
	Chunk      ChunkConfig      `yaml:"chunk"`
	Archetype  ArchetypeConfig  `yaml:"archetype"`
	EntityPool EntityPoolConfig `yaml:"entity_pool"`
	QueryCache QueryCacheConfig `yaml:"query_cache"`

	// Logger receives registry logs. Nil means zerolog.Nop().
	Logger *zerolog.Logger `yaml:"-"`
}

type SparseSetConfig struct {
	InitialCapacity int     `yaml:"initial_capacity"`
	SparseGrowth    float64 `yaml:"sparse_growth"`
	DenseGrowth     float64 `yaml:"dense_growth"`
	ThreadSafe      bool    `yaml:"thread_safe"`
}

type ChunkConfig struct {
	// ChunkBytes is the byte budget of one chunk.
	ChunkBytes int `yaml:"chunk_bytes"`
	// Alignment is the minimum alignment requested for chunk data.
	Alignment int `yaml:"alignment"`
	// MaxChunks caps the chunks of one (archetype, component) pair.
	MaxChunks int `yaml:"max_chunks"`
	// HotThreshold is the access count above which a component is hot.
	// Zero disables hot tracking.
	HotThreshold uint64 `yaml:"hot_threshold"`
}

type ArchetypeConfig struct {
	MaxArchetypes int  `yaml:"max_archetypes"`
	EnableGraph   bool `yaml:"enable_graph"`
}

type EntityPoolConfig struct {
	InitialCapacity int `yaml:"initial_capacity"`
	MaxEntities     int `yaml:"max_entities"`
	// BatchSize is the number of queued operations that triggers a flush.
	BatchSize int `yaml:"batch_size"`
	// RecycleThreshold is the free queue length that must be exceeded
	// before freed ids are reused.
	RecycleThreshold    int  `yaml:"recycle_threshold"`
	EnableRecycling     bool `yaml:"enable_recycling"`
	EnableRelationships bool `yaml:"enable_relationships"`
	TemplateCacheSize   int  `yaml:"template_cache_size"`
	ThreadSafe          bool `yaml:"thread_safe"`
}

type QueryCacheConfig struct {
	Enabled          bool          `yaml:"enabled"`
	HotSize          int           `yaml:"hot_size"`
	MinHotSize       int           `yaml:"min_hot_size"`
	WarmSize         int           `yaml:"warm_size"`
	MaxCachedQueries int           `yaml:"max_cached_queries"`
	PromoteThreshold uint64        `yaml:"promote_threshold"`
	EnableBloom      bool          `yaml:"enable_bloom"`
	BloomBits        uint64        `yaml:"bloom_bits"`
	BloomHashes      uint64        `yaml:"bloom_hashes"`
	EnableAdaptive   bool          `yaml:"enable_adaptive"`
	TargetHitRatio   float64       `yaml:"target_hit_ratio"`
	AdaptInterval    uint64        `yaml:"adapt_interval"`
	EntryTTL         time.Duration `yaml:"entry_ttl"`
	ThreadSafe       bool          `yaml:"thread_safe"`
}

func DefaultConfig() Config {
	return Config{
		Concurrency: runtime.GOMAXPROCS(0),
		SparseSet:   DefaultSparseSetConfig(),
		Chunk: ChunkConfig{
			ChunkBytes:   16 * 1024,
			Alignment:    32,
			MaxChunks:    4096,
			HotThreshold: 100,
		},
		Archetype: ArchetypeConfig{
			MaxArchetypes: 32768,
			EnableGraph:   true,
		},
		EntityPool: EntityPoolConfig{
			InitialCapacity:     4096,
			MaxEntities:         1_000_000,
			BatchSize:           256,
			RecycleThreshold:    1000,
			EnableRecycling:     true,
			EnableRelationships: true,
			TemplateCacheSize:   512,
		},
		QueryCache: QueryCacheConfig{
			Enabled:          true,
			HotSize:          128,
			MinHotSize:       16,
			WarmSize:         512,
			MaxCachedQueries: 1024,
			PromoteThreshold: 10,
			EnableBloom:      true,
			BloomBits:        8192,
			BloomHashes:      4,
			EnableAdaptive:   true,
			TargetHitRatio:   0.85,
			AdaptInterval:    256,
			EntryTTL:         30 * time.Second,
		},
	}
}

func DefaultSparseSetConfig() SparseSetConfig {
	return SparseSetConfig{
		InitialCapacity: 64,
		SparseGrowth:    2.0,
		DenseGrowth:     1.5,
	}
}

func (c SparseSetConfig) withDefaults() SparseSetConfig {
	d := DefaultSparseSetConfig()
	if c.InitialCapacity < 0 {
		c.InitialCapacity = 0
	}
	if c.SparseGrowth <= 1 {
		c.SparseGrowth = d.SparseGrowth
	}
	if c.DenseGrowth <= 1 {
		c.DenseGrowth = d.DenseGrowth
	}
	return c
}

// envOverrides lists the settings that can be changed through DEPOT_*
// environment variables.
type envOverrides struct {
	ThreadSafe       bool   `config:"DEPOT_THREAD_SAFE"`
	Concurrency      int    `config:"DEPOT_CONCURRENCY"`
	ChunkBytes       int    `config:"DEPOT_CHUNK_BYTES"`
	MaxChunks        int    `config:"DEPOT_MAX_CHUNKS"`
	MaxArchetypes    int    `config:"DEPOT_MAX_ARCHETYPES"`
	MaxEntities      int    `config:"DEPOT_MAX_ENTITIES"`
	BatchSize        int    `config:"DEPOT_BATCH_SIZE"`
	RecycleThreshold int    `config:"DEPOT_RECYCLE_THRESHOLD"`
	QueryCache       bool   `config:"DEPOT_QUERY_CACHE"`
	HotCacheSize     int    `config:"DEPOT_HOT_CACHE_SIZE"`
	WarmCacheSize    int    `config:"DEPOT_WARM_CACHE_SIZE"`
	BloomBits        uint64 `config:"DEPOT_BLOOM_BITS"`
}

// LoadConfig starts from DefaultConfig, applies the YAML file at path (when
// path is not empty) and then DEPOT_* environment overrides.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, eris.Wrapf(err, "failed to read config %s", path)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, eris.Wrapf(err, "failed to parse config %s", path)
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	o := envOverrides{
		ThreadSafe:       c.ThreadSafe,
		Concurrency:      c.Concurrency,
		ChunkBytes:       c.Chunk.ChunkBytes,
		MaxChunks:        c.Chunk.MaxChunks,
		MaxArchetypes:    c.Archetype.MaxArchetypes,
		MaxEntities:      c.EntityPool.MaxEntities,
		BatchSize:        c.EntityPool.BatchSize,
		RecycleThreshold: c.EntityPool.RecycleThreshold,
		QueryCache:       c.QueryCache.Enabled,
		HotCacheSize:     c.QueryCache.HotSize,
		WarmCacheSize:    c.QueryCache.WarmSize,
		BloomBits:        c.QueryCache.BloomBits,
	}
	if err := config.FromEnv().To(&o); err != nil {
		return eris.Wrap(err, "failed to read environment overrides")
	}
	c.ThreadSafe = o.ThreadSafe
	c.Concurrency = o.Concurrency
	c.Chunk.ChunkBytes = o.ChunkBytes
	c.Chunk.MaxChunks = o.MaxChunks
	c.Archetype.MaxArchetypes = o.MaxArchetypes
	c.EntityPool.MaxEntities = o.MaxEntities
	c.EntityPool.BatchSize = o.BatchSize
	c.EntityPool.RecycleThreshold = o.RecycleThreshold
	c.QueryCache.Enabled = o.QueryCache
	c.QueryCache.HotSize = o.HotCacheSize
	c.QueryCache.WarmSize = o.WarmCacheSize
	c.QueryCache.BloomBits = o.BloomBits
	return nil
}

// Validate rejects configurations a registry cannot be built from.
func (c Config) Validate() error {
	switch {
	case c.Concurrency < 1:
		return eris.Errorf("concurrency must be positive, got %d", c.Concurrency)
	case c.Chunk.Alignment < 1:
		return eris.Errorf("chunk alignment must be positive, got %d", c.Chunk.Alignment)
	case c.Chunk.ChunkBytes < c.Chunk.Alignment:
		return eris.Errorf("chunk bytes (%d) must be at least the alignment (%d)", c.Chunk.ChunkBytes, c.Chunk.Alignment)
	case c.Chunk.MaxChunks < 1:
		return eris.Errorf("max chunks must be positive, got %d", c.Chunk.MaxChunks)
	case c.Archetype.MaxArchetypes < 1:
		return eris.Errorf("max archetypes must be positive, got %d", c.Archetype.MaxArchetypes)
	case c.EntityPool.MaxEntities < 1:
		return eris.Errorf("max entities must be positive, got %d", c.EntityPool.MaxEntities)
	case c.EntityPool.BatchSize < 1:
		return eris.Errorf("batch size must be positive, got %d", c.EntityPool.BatchSize)
	case c.EntityPool.RecycleThreshold < 0:
		return eris.Errorf("recycle threshold must not be negative, got %d", c.EntityPool.RecycleThreshold)
	case c.EntityPool.TemplateCacheSize < 0:
		return eris.Errorf("template cache size must not be negative, got %d", c.EntityPool.TemplateCacheSize)
	}
	if !c.QueryCache.Enabled {
		return nil
	}
	q := c.QueryCache
	switch {
	case q.HotSize < 1 || q.WarmSize < 1:
		return eris.Errorf("query cache tiers must be positive, got hot=%d warm=%d", q.HotSize, q.WarmSize)
	case q.MinHotSize < 1 || q.MinHotSize > q.HotSize:
		return eris.Errorf("min hot size must be in [1, %d], got %d", q.HotSize, q.MinHotSize)
	case q.MaxCachedQueries < q.HotSize+q.WarmSize:
		return eris.Errorf("max cached queries (%d) is below hot+warm (%d)", q.MaxCachedQueries, q.HotSize+q.WarmSize)
	case q.TargetHitRatio <= 0 || q.TargetHitRatio > 1:
		return eris.Errorf("target hit ratio must be in (0, 1], got %v", q.TargetHitRatio)
	case q.EnableBloom && (q.BloomBits == 0 || q.BloomHashes == 0):
		return eris.Errorf("bloom filter needs bits and hashes, got %d/%d", q.BloomBits, q.BloomHashes)
	}
	return nil
}

func (c Config) logger() zerolog.Logger {
	if c.Logger == nil {
		return zerolog.Nop()
	}
	return *c.Logger
}
