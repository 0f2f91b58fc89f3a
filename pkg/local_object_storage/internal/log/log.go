package storagelog

import (
	"go.uber.org/zap"
)

// headMsg is a distinctive part of all messages.
const headMsg = "local object storage operation"

// Write writes message about disk file operation to logger.
func Write(logger *zap.Logger, fields ...zap.Field) {
	logger.Debug(headMsg, fields...)
}

// HashDirField returns logger's field for object hash directory.
func HashDirField(path string) zap.Field {
	return zap.String("hash_dir", path)
}

// OpField returns logger's field for operation type.
func OpField(op string) zap.Field {
	return zap.String("op", op)
}

// FileField returns logger's field for published file name.
func FileField(name string) zap.Field {
	return zap.String("file", name)
}
