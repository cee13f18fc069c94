// Package main 是应用程序的入口点。
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"mime"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"doc-whisper-go/internal/config"
	"doc-whisper-go/internal/handler"
	"doc-whisper-go/internal/pipeline"
	"doc-whisper-go/internal/repository"
	"doc-whisper-go/internal/service"
	"doc-whisper-go/internal/vectorindex"
	"doc-whisper-go/pkg/database"
	"doc-whisper-go/pkg/embedding"
	"doc-whisper-go/pkg/kafka"
	"doc-whisper-go/pkg/llm"
	"doc-whisper-go/pkg/log"
	"doc-whisper-go/pkg/storage"
	"doc-whisper-go/pkg/tika"
)

func main() {
	configPath := flag.String("config", "./configs/config.yaml", "配置文件路径")
	seedDir := flag.String("seed-dir", "initfile", "启动时自动导入的文档目录")
	flag.Parse()

	// 1. 初始化配置，.env 中的 DOCWHISPER_* 变量会覆盖配置文件
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "加载 .env 失败: %v\n", err)
	}
	config.Init(*configPath)
	cfg := config.Conf

	// 2. 初始化日志记录器
	log.Init(cfg.Log.Level, cfg.Log.Format, cfg.Log.OutputPath)
	defer log.Sync()
	log.Info("日志记录器初始化成功")

	// 3. 初始化向量索引、数据库、Redis 与对象存储
	index, err := vectorindex.New(cfg)
	if err != nil {
		log.Fatal("向量索引初始化失败", err)
	}
	defer index.Close()

	database.InitMySQL(cfg.Database.MySQL.DSN)
	storage.InitMinIO(cfg.MinIO)

	var conversationRepo repository.ConversationRepository
	if cfg.Database.Redis.Addr != "" {
		database.InitRedis(cfg.Database.Redis.Addr, cfg.Database.Redis.Password, cfg.Database.Redis.DB)
		ttl := time.Duration(cfg.Conversation.TTLHours) * time.Hour
		conversationRepo = repository.NewConversationRepository(database.RDB, cfg.Conversation.MaxMessages, ttl)
	} else {
		log.Warnf("未配置 Redis，对话历史仅保存在进程内存中")
		conversationRepo = repository.NewMemoryConversationRepository(cfg.Conversation.MaxMessages)
	}

	// 4. 初始化 Repository 与外部服务客户端
	documentRepo := repository.NewDocumentRepository(database.DB)
	objectStore := storage.NewMinioStore(storage.MinioClient, cfg.MinIO.BucketName)
	tikaClient := tika.NewClient(cfg.Tika)
	embeddingClient := embedding.NewClient(cfg.Embedding)
	llmClient := llm.NewClient(cfg.LLM)

	// 5. 初始化入库流水线
	ingestor := pipeline.NewIngestor(embeddingClient, index, cfg.RAG.ChunkSize, cfg.RAG.ChunkOverlap, cfg.RAG.EmbedConcurrency)
	processor := pipeline.NewProcessor(objectStore, tikaClient, ingestor, index, documentRepo)

	// 6. 异步模式下启动 Kafka 生产者与后台消费者
	bgCtx, cancelBg := context.WithCancel(context.Background())
	defer cancelBg()
	var bgWG sync.WaitGroup

	var publisher service.TaskPublisher
	if cfg.Ingestion.Async {
		if database.RDB == nil {
			log.Fatalf("异步入库需要 Redis 记录任务重试次数")
		}
		producer := kafka.NewProducer(cfg.Kafka)
		defer producer.Close()
		publisher = producer

		bgWG.Add(1)
		go func() {
			defer bgWG.Done()
			kafka.StartConsumer(bgCtx, cfg.Kafka, processor, kafka.NewRedisAttemptCounter(database.RDB))
		}()
	}

	// 7. 初始化 Service (依赖注入)
	retrievalService := service.NewRetrievalService(embeddingClient, index, cfg.RAG.MaxResults, cfg.RAG.MinScore)
	prompts := service.NewPromptBuilder(cfg.LLM.Prompt.Rules)
	fallbacks := service.FallbackTexts{
		EmptyDocument: cfg.LLM.Prompt.EmptyDocumentText,
		NoResult:      cfg.LLM.Prompt.NoResultText,
	}
	chatService := service.NewChatService(retrievalService, prompts, llmClient, conversationRepo, fallbacks)
	conversationService := service.NewConversationService(conversationRepo)
	documentService := service.NewDocumentService(documentRepo, objectStore, index, processor, publisher)

	// 7.1 导入 seed 目录中的文档，已存在同名文档则跳过
	bgWG.Add(1)
	go func() {
		defer bgWG.Done()
		seedDocuments(bgCtx, *seedDir, documentService)
	}()

	// 8. 设置 Gin 模式并注册路由
	gin.SetMode(cfg.Server.Mode)
	r := handler.NewRouter(handler.Handlers{
		Document:     handler.NewDocumentHandler(documentService, cfg.Server.MaxUploadMB),
		Chat:         handler.NewChatHandler(chatService),
		Search:       handler.NewSearchHandler(retrievalService),
		Conversation: handler.NewConversationHandler(conversationService),
	})

	// 启动 HTTP 服务器并实现优雅停机
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: r,
	}

	go func() {
		log.Infof("服务启动于 %s, 向量索引后端: %s", srv.Addr, cfg.Index.Backend)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP 服务监听失败: %s\n", err)
		}
	}()

	// 等待中断信号以实现优雅停机
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("接收到停机信号，正在关闭服务...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("HTTP 服务器关闭失败: %v", err)
	}

	// 停止 Kafka 消费者与 seed 导入，等待其退出后再关闭索引
	cancelBg()
	bgWG.Wait()
	log.Info("服务已优雅关闭")
}

// seedDocuments 把目录下的文件按正常上传流程导入（幂等：按文件名跳过已存在的文档）。
func seedDocuments(ctx context.Context, dir string, docService service.DocumentService) {
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		log.Infof("seedDocuments: 目录 '%s' 不存在或不可用，跳过初始化导入", dir)
		return
	}

	existing := map[string]bool{}
	if docs, err := docService.List(); err == nil {
		for _, d := range docs {
			existing[d.Name] = true
		}
	} else {
		log.Warnf("seedDocuments: 获取已有文档失败, err=%v", err)
		return
	}

	walkErr := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		fileName := info.Name()
		if existing[fileName] {
			log.Infof("seedDocuments: 已存在，跳过: %s", fileName)
			return nil
		}
		if info.Size() == 0 {
			log.Infof("seedDocuments: 空文件跳过: %s", path)
			return nil
		}

		f, err := os.Open(path)
		if err != nil {
			log.Warnf("seedDocuments: 打开文件失败: %s, err=%v", path, err)
			return nil
		}
		defer f.Close()

		contentType := mime.TypeByExtension(filepath.Ext(fileName))
		doc, err := docService.Upload(ctx, fileName, contentType, info.Size(), f)
		if err != nil {
			log.Warnf("seedDocuments: 导入失败: %s, err=%v", path, err)
			return nil
		}
		existing[fileName] = true
		log.Infof("seedDocuments: 导入完成: %s (id=%s)", fileName, doc.ID)
		return nil
	})
	if walkErr != nil && !errors.Is(walkErr, context.Canceled) {
		log.Warnf("seedDocuments: 遍历目录发生错误: %v", walkErr)
	}
}
