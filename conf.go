package smsverify

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/IMQS/log"
	"gopkg.in/yaml.v3"
)

/*

Sample config:

{
	"HTTPPort": 2013,
	"Logfile": "c:/imqsvar/logs/smsverify.log",
	"Agent": "Clickatell",
	"Agents": {
		"Clickatell": {
			"Token": "123abc",
			"From": "IMQS"
		},
		"MockProvider": {
			"VerifySmsTemplateId": "verify-1"
		}
	},
	"CodeLength": 5,
	"CodeValidTime": 5,
	"MaxCheckAttempts": 5,
	"SessionKey": "smsverify",
	"VerifySmsContent": "Your verification code is {code}. It expires in {minutes} minutes.",
	"SmsSendQueue": "",
	"SmsWorker": "SmsWorker",
	"Alternate": {
		"Enable": true,
		"Agents": ["Clickatell", "MockProvider"]
	},
	"Rules": {
		"mobile": {
			"is_check": true,
			"choose_rule": "check_mobile",
			"rules": {
				"check_mobile": "required|mobile",
				"local_only": "required|mobile|regex:^0"
			}
		}
	},
	"Countries": ["ZA", "BW"],
	"RateLimit": {
		"PerMinute": 1,
		"Burst": 3
	},
	"Authentication": {
		"Service": "serviceauth",
		"Enabled": false
	},
	"Session": {
		"Driver": "postgres",
		"CookieName": "smsverify_session",
		"Lifetime": "30m",
		"PurgeInterval": "10m"
	},
	"DeliveryStatus": {
		"Enabled": true,
		"UpdateInterval": "15m"
	},
	"DBConnection": {
		"Driver": "postgres",
		"Host": "localhost",
		"Port": 5432,
		"Database": "smsverify",
		"User": "jim",
		"Password": "123",
		"SSL": false
	}
}

*/

const (
	defaultCodeLength       = 5
	defaultCodeValidTime    = 5
	defaultMaxCheckAttempts = 5
	defaultSessionKey       = "smsverify"
	defaultSmsWorker        = "SmsWorker"
	defaultCookieName       = "smsverify_session"
	defaultSessionLifetime  = "30m"
	defaultQueueSize        = 100
	defaultVerifySmsContent = "Your verification code is {code}. It expires in {minutes} minutes."
)

// VerifyServer holds everything that outlives a single request.
// A Manager is created from it for every request.
type VerifyServer struct {
	Config   Configuration
	Log      *log.Logger
	DB       sqlVerifyDB
	Registry *Registry
	Sessions SessionBackend
	Limiter  *MobileLimiter
	Metrics  *Metrics
	Queue    *QueueWorker
	Interval IntervalService
}

type Configuration struct {
	HTTPPort         int                    `yaml:"httpPort"`
	Logfile          string                 `yaml:"logfile"`
	Agent            string                 `yaml:"agent"`
	Agents           map[string]ConfigAgent `yaml:"agents"`
	CodeLength       int                    `yaml:"codeLength"`
	CodeValidTime    int                    `yaml:"codeValidTime"` // minutes
	MaxCheckAttempts int                    `yaml:"maxCheckAttempts"`
	SessionKey       string                 `yaml:"sessionKey"`
	VerifySmsContent string                 `yaml:"verifySmsContent"`
	SmsSendQueue     string                 `yaml:"smsSendQueue"`
	SmsWorker        string                 `yaml:"smsWorker"`
	QueueSize        int                    `yaml:"queueSize"`
	Alternate        ConfigAlternate        `yaml:"alternate"`
	Rules            map[string]RuleSet     `yaml:"rules"`
	Countries        []string               `yaml:"countries"`
	RateLimit        ConfigRateLimit        `yaml:"rateLimit"`
	Authentication   ConfigAuth             `yaml:"authentication"`
	Session          ConfigSession          `yaml:"session"`
	DeliveryStatus   ConfigDeliveryStatus   `yaml:"deliveryStatus"`
	DBConnection     ConfigDBConnection     `yaml:"dbConnection"`
}

// ConfigAgent is the settings block of a single SMS agent.
type ConfigAgent struct {
	Token               string `yaml:"token"`
	Endpoint            string `yaml:"endpoint"`
	From                string `yaml:"from"`
	VerifySmsTemplateId string `yaml:"verifySmsTemplateId"`
	RequireTemplate     bool   `yaml:"requireTemplate"`
	SimulateFailure     bool   `yaml:"simulateFailure"` // MockProvider only
}

// ConfigAlternate is the ordered list of agents to fall over to.
type ConfigAlternate struct {
	Enable bool     `yaml:"enable"`
	Agents []string `yaml:"agents"`
}

// ConfigRateLimit limits how often a code may be sent to one mobile number.
// A zero PerMinute disables the limit.
type ConfigRateLimit struct {
	PerMinute float64 `yaml:"perMinute"`
	Burst     int     `yaml:"burst"`
}

type ConfigAuth struct {
	Service string `yaml:"service"`
	Enabled bool   `yaml:"enabled"`
}

// ConfigSession selects the session backend. Driver is one of "memory", "bolt" or "postgres".
type ConfigSession struct {
	Driver        string `yaml:"driver"`
	BoltFile      string `yaml:"boltFile"`
	CookieName    string `yaml:"cookieName"`
	Lifetime      string `yaml:"lifetime"`
	PurgeInterval string `yaml:"purgeInterval"`
}

// ConfigDeliveryStatus controls the behaviour of the delivery status checker.
// It needs a DBConnection, since the sends to check come from the send log.
type ConfigDeliveryStatus struct {
	Enabled        bool   `yaml:"enabled"`
	UpdateInterval string `yaml:"updateInterval"`
}

type ConfigDBConnection struct {
	Driver   string `yaml:"driver"`
	Host     string `yaml:"host"`
	Port     uint16 `yaml:"port"`
	Database string `yaml:"database"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSL      bool   `yaml:"ssl"`
}

// NewConfig reads the config file. Files ending in .yaml or .yml are decoded as YAML,
// everything else as JSON.
func (c *Configuration) NewConfig(filename string) error {
	raw, err := os.ReadFile(filename)
	if err != nil {
		return err
	}

	switch strings.ToLower(filepath.Ext(filename)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(raw, c)
	default:
		err = json.Unmarshal(raw, c)
	}
	if err != nil {
		return fmt.Errorf("error parsing config file %v: %w", filename, err)
	}

	c.applyDefaults()
	return nil
}

func (c *Configuration) applyDefaults() {
	if c.CodeLength <= 0 {
		c.CodeLength = defaultCodeLength
	}
	if c.CodeValidTime <= 0 {
		c.CodeValidTime = defaultCodeValidTime
	}
	if c.MaxCheckAttempts <= 0 {
		c.MaxCheckAttempts = defaultMaxCheckAttempts
	}
	if c.SessionKey == "" {
		c.SessionKey = defaultSessionKey
	}
	if c.SmsWorker == "" {
		c.SmsWorker = defaultSmsWorker
	}
	if c.QueueSize <= 0 {
		c.QueueSize = defaultQueueSize
	}
	if c.VerifySmsContent == "" {
		c.VerifySmsContent = defaultVerifySmsContent
	}
	if c.Session.Driver == "" {
		c.Session.Driver = "memory"
	}
	if c.Session.CookieName == "" {
		c.Session.CookieName = defaultCookieName
	}
	if c.Session.Lifetime == "" {
		c.Session.Lifetime = defaultSessionLifetime
	}
}

// Initialize opens the log file, the DB (when configured) and the session backend,
// then starts the send queue and the session purge ticker.
func (s *VerifyServer) Initialize() error {
	var err error

	s.Config.applyDefaults()
	s.Log = log.New(s.Config.Logfile)

	if s.Registry == nil {
		s.Registry = DefaultRegistry()
	}
	s.Queue = NewQueueWorker(s.Config.QueueSize, s.Log)
	s.Queue.Start()
	s.Registry.RegisterWorker(QueueWorkerName, s.Queue)

	s.Metrics = NewMetrics()
	s.Limiter = NewMobileLimiter(s.Config.RateLimit.PerMinute, s.Config.RateLimit.Burst)

	if s.Config.DBConnection.Driver != "" {
		if err = s.openDB(); err != nil {
			return err
		}
	}

	if s.Sessions, err = s.openSessions(); err != nil {
		s.Log.Errorf("Session backend: %v", err)
		return err
	}

	s.startInterval()
	return nil
}

func (s *VerifyServer) openDB() error {
	var err error
	s.DB.db, err = s.Config.DBConnection.open()
	if err != nil {
		s.Log.Errorf("Error connecting to SMS verification DB: %v", err)
		return err
	}

	if err = s.DB.db.Ping(); err != nil {
		s.Log.Infof("Database does not exist, creating")
		if err = s.Config.DBConnection.createDB(); err != nil {
			s.Log.Errorf("DB Create: %v", err)
			return err
		}
	}

	return s.runMigrations()
}

func (s *VerifyServer) openSessions() (SessionBackend, error) {
	switch s.Config.Session.Driver {
	case "memory":
		return NewMemorySessionBackend(), nil
	case "bolt":
		return OpenBoltSessionBackend(s.Config.Session.BoltFile)
	case "postgres":
		if s.DB.db == nil {
			return nil, fmt.Errorf("session driver postgres needs a DBConnection")
		}
		return &s.DB, nil
	}
	return nil, fmt.Errorf("unsupported session driver %v", s.Config.Session.Driver)
}

// Close stops the background work and releases the stores.
func (s *VerifyServer) Close() {
	s.Interval.Stop()
	if s.Queue != nil {
		s.Queue.Stop()
	}
	if s.Sessions != nil {
		s.Sessions.Close()
	}
	s.DB.Close()
}
