package config

type WorkerKeyStruct struct {
	MirrorCleanupQueue string
}

var WorkerKey = &WorkerKeyStruct{
	MirrorCleanupQueue: "mirror_cleanup_queue",
}
