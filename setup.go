package main

import (
	"context"
	"errors"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/tipline/go-tipline-server/global"
	"github.com/tipline/go-tipline-server/notify"
	"github.com/tipline/go-tipline-server/repository"
	"github.com/tipline/go-tipline-server/services"
	"github.com/tipline/go-tipline-server/types"
)

// Register modules that implement the recipient Notifier interface
func RegisterNotifiers(conf *global.Config) {
	notify.RegisterNotifier("log", notify.NewLogNotifier())
}

// Configure DB Repositories and create DB Selector
func ConfigDBSelector() repository.DBSelector {
	// configure Repository (couchDB)
	repoUrl := global.Conf.CouchDB.Scheme + "://" + global.Conf.CouchDB.Host + ":" + strconv.Itoa(global.Conf.CouchDB.Port)
	submissionRepo, submissionRepoErr := repository.NewCouchDBRepository(repoUrl, repository.Submission, global.Conf.CouchDB.Username, global.Conf.CouchDB.Password, false)
	recipientRepo, recipientRepoErr := repository.NewCouchDBRepository(repoUrl, repository.Recipient, global.Conf.CouchDB.Username, global.Conf.CouchDB.Password, false)
	commentRepo, commentRepoErr := repository.NewCouchDBRepository(repoUrl, repository.Comment, global.Conf.CouchDB.Username, global.Conf.CouchDB.Password, false)
	messageRepo, messageRepoErr := repository.NewCouchDBRepository(repoUrl, repository.Message, global.Conf.CouchDB.Username, global.Conf.CouchDB.Password, false)
	auditRepo, auditRepoErr := repository.NewCouchDBRepository(repoUrl, repository.Audit, global.Conf.CouchDB.Username, global.Conf.CouchDB.Password, false)
	nonceRepo, nonceRepoErr := repository.NewCouchDBRepository(repoUrl, repository.Nonce, global.Conf.CouchDB.Username, global.Conf.CouchDB.Password, false)
	settingsRepo, settingsRepoErr := repository.NewCouchDBRepository(repoUrl, repository.Settings, global.Conf.CouchDB.Username, global.Conf.CouchDB.Password, false)

	repoErr := errors.Join(submissionRepoErr, recipientRepoErr, commentRepoErr, messageRepoErr, auditRepoErr, nonceRepoErr, settingsRepoErr)
	if repoErr != nil {
		global.Logger.Log("error", "Failed to create repositories", "error", repoErr.Error())
		panic(repoErr)
	}

	// REPOSITORY definitions
	dbSelector := repository.NewCouchDBSelector()
	dbSelector.AddDB(submissionRepo)
	dbSelector.AddDB(recipientRepo)
	dbSelector.AddDB(commentRepo)
	dbSelector.AddDB(messageRepo)
	dbSelector.AddDB(auditRepo)
	dbSelector.AddDB(nonceRepo)
	dbSelector.AddDB(settingsRepo)

	return dbSelector
}

func ConfigDBIndexing(dbSelector *repository.CouchDBSelector, environment *types.Environment) {
	// CREATE REQUIRED SERVICES
	nonceService := services.NewNonceService(dbSelector)

	// Create INDEXES
	recipientRepo, rErr := dbSelector.ChooseDB(repository.Recipient)
	if rErr != nil {
		panic(rErr)
	}
	commentRepo, cErr := dbSelector.ChooseDB(repository.Comment)
	if cErr != nil {
		panic(cErr)
	}
	messageRepo, mErr := dbSelector.ChooseDB(repository.Message)
	if mErr != nil {
		panic(mErr)
	}

	if icErr := repository.CreateRecipientActiveIndex(recipientRepo); icErr != nil {
		panic(icErr)
	}
	if icErr := repository.CreateCommentSubmissionIndex(commentRepo); icErr != nil {
		panic(icErr)
	}
	if icErr := repository.CreateMessageSubmissionIndex(messageRepo); icErr != nil {
		panic(icErr)
	}

	// Create DESIGN DOCUMENTS
	repository.CreateDesign_ExpiredSubmissions(repository.Submission, "retention", "expired")
	repository.CreateDesign_SubmissionsByRecipient(repository.Submission, "tips", "by_recipient")
	repository.CreateDesign_ExpiredNonces(repository.Nonce, "nonce", "old")

	// cron jobs
	environment.Cron.AddFunc("@every 5m", nonceService.RemoveExpiredNonces) // remove expired nonces every 5 minutes
	environment.Cron.Start()
	go nonceService.RemoveExpiredNonces() // run once on startup
}

// ConfigRetentionSweep schedules the expiry sweep which purges submissions
// past their retention deadline.
func ConfigRetentionSweep(dbSelector *repository.CouchDBSelector, environment *types.Environment) {
	recipientService := services.NewRecipientService(dbSelector)
	settingsService := services.NewSettingsService(dbSelector)
	s3Service := services.NewS3Service(environment)
	submissionService := services.NewSubmissionService(dbSelector, recipientService, settingsService, s3Service, environment)

	environment.Cron.AddFunc(global.Conf.Retention.SweepCron, submissionService.SweepExpired)
	environment.Cron.Start()
	go submissionService.SweepExpired() // run once on startup
}

func ConfigS3Storage(conf *global.Config, env *types.Environment) {
	// configure S3 compatible storage for encrypted attachments
	creds := aws.NewCredentialsCache(credentials.NewStaticCredentialsProvider(conf.Storage.Key, conf.Storage.Secret, ""))
	awsConf, err := config.LoadDefaultConfig(context.TODO(), config.WithCredentialsProvider(creds), config.WithRegion(conf.Storage.Region))
	if err != nil {
		panic(err)
	}
	s3Client := s3.NewFromConfig(awsConf, func(o *s3.Options) {
		if conf.Storage.Endpoint != "" {
			o.BaseEndpoint = aws.String(conf.Storage.Endpoint)
			o.UsePathStyle = true
		}
	})
	uploader := manager.NewUploader(s3Client)

	env.S3Client = s3Client
	env.S3Uploader = uploader
}
