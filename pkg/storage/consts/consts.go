package consts

const (
	DefaultFramesDir = "frames"
	DefaultVideosDir = "videos"
	DefaultInfoFile  = "info.json"

	DefaultFrameExt = ".jpg"
	DefaultRawExt   = ".raw"
	DefaultVideoExt = ".avi"

	DefaultFilePerm = 0666
	DefaultDirPerm  = 0777
)
