package main

import (
	"context"
	"flag"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/vincent-vinf/go-jsend"
	"go.uber.org/zap"

	"camloop-pi/pkg/capture"
	"camloop-pi/pkg/capture/v4l2cam"
	"camloop-pi/pkg/eventloop"
	"camloop-pi/pkg/ov"
	"camloop-pi/pkg/session"
	"camloop-pi/pkg/sink"
	"camloop-pi/pkg/storage"
	"camloop-pi/pkg/utils"
	"camloop-pi/pkg/utils/ps"
	"camloop-pi/pkg/video"
	"camloop-pi/pkg/webdav"
)

const (
	webDavStart    = "start"
	webDavShutdown = "shutdown"
)

var (
	devPattern = flag.String("devices", v4l2cam.DefaultDevicePattern, "camera device glob")
	width      = flag.Int("width", 2592, "requested frame width")
	height     = flag.Int("height", 1944, "requested frame height")
	format     = flag.String("format", "MJPG", "requested pixel format fourcc")
	timeout    = flag.Duration("timeout", 3*time.Second, "capture duration")
	saveEvery  = flag.Duration("save-every", 0, "minimum interval between saved frames, 0 saves all")
	quality    = flag.Int("quality", sink.DefaultJPEGQuality, "jpeg quality for raw formats")

	storageDir = flag.String("dir", "./camloop", "storage directory")
	runName    = flag.String("run", "", "capture run name, timestamp when empty")
	videoFPS   = flag.Int("video-fps", 15, "fps of the assembled timelapse, 0 disables assembly")
	ntpServer  = flag.String("ntp", utils.DefaultNTPServer, "ntp server for clock correction")

	port       = flag.Int("port", 9999, "api port")
	webdavPort = flag.Int("webdav-port", 9998, "webdav port")
	serve      = flag.Bool("serve", false, "keep the api running after capture finishes")
	debug      = flag.Bool("debug", false, "log every processed frame")

	logger *zap.SugaredLogger

	stg     *storage.Storage
	capRun  *storage.Run
	mgr     *v4l2cam.Manager
	sess    *session.Session
	preview *sink.Preview

	cancelWebdav context.CancelFunc
	cancelLock   sync.Mutex
)

func init() {
	logger = utils.GetLogger()
	flag.Parse()
	utils.SetDebug(*debug)
}

func main() {
	defer logger.Sync()
	defer func() {
		cancelLock.Lock()
		if cancelWebdav != nil {
			cancelWebdav()
		}
		cancelLock.Unlock()
	}()

	if err := run(); err != nil {
		logger.Errorf("capture failed: %s", err)
		os.Exit(1)
	}
}

func run() error {
	var err error
	stg, err = storage.New(*storageDir)
	if err != nil {
		return fmt.Errorf("init storage err: %w", err)
	}

	startedAt := utils.NTPNow(*ntpServer)
	name := *runName
	if name == "" {
		name = "run-" + startedAt.Format("20060102-150405")
	}
	capRun, err = stg.NewRun(name, "capture demo", startedAt)
	if err != nil {
		return fmt.Errorf("create run err: %w", err)
	}

	preview = sink.NewPreview(*quality)
	var store sink.Sink = sink.NewStore(capRun, *quality)
	if *saveEvery > 0 {
		store = sink.NewDrop(store, *saveEvery)
	}

	loop := eventloop.New()
	mgr = v4l2cam.NewManager(*devPattern)
	sess = session.New(mgr, loop, sink.Multi(store, preview), session.Config{
		Size:        capture.Size{Width: *width, Height: *height},
		PixelFormat: parseFourCC(*format),
		Role:        capture.Viewfinder,
		Controls: capture.ControlList{
			capture.ControlExposureTime: 100000,
			capture.ControlAnalogueGain: 100000,
		},
		Timeout: *timeout,
	})
	defer sess.Close()

	srv := startAPI()
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			logger.Errorf("api shutdown err: %s", err)
		}
	}()

	if err = sess.Setup(); err != nil {
		return err
	}
	streamCfg := sess.StreamConfiguration()

	if err = sess.Run(); err != nil {
		return err
	}
	sess.Close()

	stats := sess.Stats()
	logger.Infof("processed %d frames, %d failed, %d requeued", stats.Processed, stats.Failed, stats.Requeued)

	if *videoFPS > 0 && stats.Processed > 0 {
		out, err := video.Assemble(capRun, "timelapse", streamCfg.Size.Width, streamCfg.Size.Height, *videoFPS)
		if err != nil {
			logger.Errorf("assemble timelapse err: %s", err)
		} else {
			logger.Infof("timelapse written to %s", out)
		}
	}

	if *serve {
		logger.Infof("api listening on :%d", *port)
		utils.WatchSignal()
	}

	return nil
}

func startAPI() *http.Server {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(utils.Cors())

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, jsend.SimpleErr("page not found"))
	})

	apiRouter := r.Group("/api")

	deviceRouter := apiRouter.Group("/device")
	deviceRouter.GET("/cameras", listCameras)
	deviceRouter.GET("/realtime/video", realtimeVideo)
	deviceRouter.GET("/stats", deviceStats)
	deviceRouter.PUT("/webdav", ctlWebdav)

	apiRouter.GET("/capture", getCapture)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", *port),
		Handler: r,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Errorf("api server err: %s", err)
		}
	}()

	return srv
}

func listCameras(c *gin.Context) {
	var res []ov.CameraInfo
	for _, cam := range mgr.Cameras() {
		props := cam.Properties()
		res = append(res, ov.CameraInfo{
			ID:     cam.ID(),
			Name:   capture.CameraName(cam),
			Model:  props.Model,
			Driver: props.Driver,
		})
	}

	c.JSON(http.StatusOK, jsend.Success(res))
}

func realtimeVideo(c *gin.Context) {
	frames, cancel := preview.Subscribe()
	defer cancel()

	mimeWriter := multipart.NewWriter(c.Writer)
	c.Header("Content-Type", fmt.Sprintf("multipart/x-mixed-replace; boundary=%s", mimeWriter.Boundary()))
	partHeader := make(textproto.MIMEHeader)
	partHeader.Add("Content-Type", "image/jpeg")

	for {
		select {
		case <-c.Request.Context().Done():
			return
		case frame, ok := <-frames:
			if !ok {
				return
			}
			partWriter, err := mimeWriter.CreatePart(partHeader)
			if err != nil {
				logger.Errorf("create multi-part writer err: %s", err)
				return
			}
			if _, err := partWriter.Write(frame); err != nil {
				logger.Errorf("write preview frame err: %s", err)
				return
			}
		}
	}
}

func deviceStats(c *gin.Context) {
	cpu, err := ps.CPUStatus()
	if err != nil {
		internalErr(c, err)
		return
	}
	memory, err := ps.MemoryStatus()
	if err != nil {
		internalErr(c, err)
		return
	}
	disk, err := ps.DiskUsage(stg.Root())
	if err != nil {
		internalErr(c, err)
		return
	}
	used, err := ps.DirDiskUsage(stg.Root())
	if err != nil {
		internalErr(c, err)
		return
	}

	c.JSON(http.StatusOK, jsend.Success(ov.DeviceStats{
		CPU:          cpu,
		Memory:       memory,
		Disk:         disk,
		StorageBytes: used,
	}))
}

func getCapture(c *gin.Context) {
	files, err := capRun.Files()
	if err != nil {
		internalErr(c, err)
		return
	}

	c.JSON(http.StatusOK, jsend.Success(gin.H{
		"run": ov.RunInfo{
			Name:      capRun.Name,
			Info:      capRun.Info,
			StartedAt: capRun.StartedAt,
			Frames:    files,
		},
		"stats": sess.Stats(),
	}))
}

func ctlWebdav(c *gin.Context) {
	switch op := c.Query("op"); op {
	case webDavStart:
		startWebdav(c)
	case webDavShutdown:
		shutdownWebdav(c)
	default:
		c.JSON(http.StatusBadRequest, jsend.SimpleErr("unknown operation"))
	}
}

func startWebdav(c *gin.Context) {
	cancelLock.Lock()
	defer cancelLock.Unlock()
	if cancelWebdav != nil {
		c.JSON(http.StatusOK, jsend.Success("the webdav service is already enabled"))
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	webdav.Serve(ctx, *webdavPort, *storageDir)
	cancelWebdav = cancel

	c.JSON(http.StatusOK, jsend.Success(c.Request.Host))
}

func shutdownWebdav(c *gin.Context) {
	cancelLock.Lock()
	defer cancelLock.Unlock()
	if cancelWebdav == nil {
		c.JSON(http.StatusOK, jsend.SimpleErr("the webdav service has been shut down"))
		return
	}
	cancelWebdav()
	cancelWebdav = nil

	c.JSON(http.StatusOK, jsend.Success(nil))
}

func internalErr(c *gin.Context, err error) {
	c.JSON(http.StatusInternalServerError, jsend.SimpleErr(err.Error()))
}

func parseFourCC(s string) capture.PixelFormat {
	if len(s) != 4 {
		return 0
	}
	return capture.FourCC(s[0], s[1], s[2], s[3])
}
