package utils

// AuthCachePrefix is the prefix used for Redis authorization cache keys.
const AuthCachePrefix = "auth:"

// DedupePrefix prefixes duplicate-submission markers in the cache database.
const DedupePrefix = "dedupe:"
