package internal

// EnvPrefix is a prefix of ENV variables related
// to disk file tool configuration.
const EnvPrefix = "neofs_diskfile"

// EnvSeparator is a section separator in ENV variables.
const EnvSeparator = "_"
