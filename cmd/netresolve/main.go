package main

import (
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	syslog "github.com/RackSec/srslog"
	netresolve "github.com/crossdistro/netresolve"
	"github.com/miekg/dns"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var version = "unreleased"

func printVersion() {
	fmt.Println("netresolve", version)
}

type options struct {
	logLevel       uint32
	version        bool
	configFile     string
	backends       string
	family         string
	socktype       string
	protocol       string
	loopback       bool
	srv            bool
	search         bool
	reverse        bool
	dnsType        string
	requestTimeout int
	resultTimeout  int
	clampTTL       int
	useSyslog      bool
	connect        bool
}

func main() {
	var opt options
	cmd := &cobra.Command{
		Use:   "netresolve [<node>] [<service>]",
		Short: "Name resolution over a configurable backend chain",
		Long: `Resolves node and service names into transport endpoints by
consulting a chain of resolution backends: hosts file, loopback
and numeric shortcuts, multicast DNS, recursive DNS, NSS modules
and arbitrary subprocesses.

The response is printed as a text dump, one line per path.
`,
		Example: `  netresolve example.com http
  netresolve --reverse 192.0.2.1
  netresolve --backends 'hosts|dns' example.com
  netresolve --dns-type SRV _sip._tcp.example.com`,
		Args:         cobra.MaximumNArgs(2),
		RunE:         func(cmd *cobra.Command, args []string) error { return run(opt, args) },
		SilenceUsage: true,
	}

	cmd.Flags().Uint32VarP(&opt.logLevel, "log-level", "l", 4, "log level; 0=None .. 6=Trace")
	cmd.Flags().BoolVarP(&opt.version, "version", "v", false, "Prints code version string")
	cmd.Flags().StringVarP(&opt.configFile, "config", "c", "", "TOML config file with context defaults")
	cmd.Flags().StringVarP(&opt.backends, "backends", "b", "", "backend chain, e.g. 'hosts|+dns'")
	cmd.Flags().StringVar(&opt.family, "family", "", "address family filter: ip4, ip6, unix")
	cmd.Flags().StringVar(&opt.socktype, "socktype", "", "socket type filter: stream, dgram, seqpacket, raw")
	cmd.Flags().StringVar(&opt.protocol, "protocol", "", "protocol filter: tcp, udp, sctp, ...")
	cmd.Flags().BoolVar(&opt.loopback, "default-loopback", false, "translate an empty node to loopback instead of any")
	cmd.Flags().BoolVar(&opt.srv, "srv", false, "perform DNS SRV indirection")
	cmd.Flags().BoolVar(&opt.search, "search", false, "follow the search list for raw DNS queries")
	cmd.Flags().BoolVar(&opt.reverse, "reverse", false, "treat <node> as an address to resolve back to a name")
	cmd.Flags().StringVar(&opt.dnsType, "dns-type", "", "issue a raw DNS query of this record type")
	cmd.Flags().IntVar(&opt.requestTimeout, "timeout", 0, "request timeout in milliseconds")
	cmd.Flags().IntVar(&opt.resultTimeout, "partial-timeout", 0, "partial result timeout in milliseconds")
	cmd.Flags().IntVar(&opt.clampTTL, "clamp-ttl", -1, "cap emitted TTLs at this many seconds")
	cmd.Flags().BoolVar(&opt.useSyslog, "syslog", false, "mirror log output to syslog")
	cmd.Flags().BoolVar(&opt.connect, "connect", false, "open a connection to the first usable path")

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// Maps the numeric log level to logrus levels, 0 silencing output entirely.
func setLogLevel(level uint32) error {
	if level > 6 {
		return fmt.Errorf("invalid log level: %d", level)
	}
	if level == 0 {
		netresolve.Log.SetOutput(os.Stderr)
		netresolve.Log.SetLevel(logrus.PanicLevel)
		return nil
	}
	netresolve.Log.SetLevel(logrus.Level(level))
	return nil
}

// Forwards library log records to the local syslog daemon.
type syslogHook struct {
	writer *syslog.Writer
}

func (h *syslogHook) Levels() []logrus.Level { return logrus.AllLevels }

func (h *syslogHook) Fire(entry *logrus.Entry) error {
	line, err := entry.String()
	if err != nil {
		return err
	}
	_, err = h.writer.Write([]byte(line))
	return err
}

func run(opt options, args []string) error {
	if opt.version {
		printVersion()
		return nil
	}
	if err := setLogLevel(opt.logLevel); err != nil {
		return err
	}
	if opt.useSyslog {
		writer, err := syslog.Dial("", "", syslog.LOG_DAEMON|syslog.LOG_INFO, "netresolve")
		if err != nil {
			return err
		}
		netresolve.Log.AddHook(&syslogHook{writer: writer})
	}

	cfg, err := loadConfig(opt.configFile)
	if err != nil {
		return err
	}

	ctx := netresolve.NewContext()
	defer ctx.Close()

	if cfg.Services != "" {
		os.Setenv("NETRESOLVE_SERVICES", cfg.Services)
	}

	backends := cfg.Backends
	if opt.backends != "" {
		backends = opt.backends
	}
	if backends != "" {
		if err := ctx.SetBackendString(backends); err != nil {
			return err
		}
	}

	var defaults []netresolve.Option
	family := cfg.Family
	if opt.family != "" {
		family = opt.family
	}
	if family != "" {
		defaults = append(defaults, netresolve.WithFamily(netresolve.FamilyFromString(family)))
	}
	socktype := cfg.Socktype
	if opt.socktype != "" {
		socktype = opt.socktype
	}
	if socktype != "" {
		defaults = append(defaults, netresolve.WithSocktype(netresolve.SocktypeFromString(socktype)))
	}
	if opt.loopback || cfg.DefaultLoopback {
		defaults = append(defaults, netresolve.WithDefaultLoopback(true))
	}
	if opt.srv || cfg.SRVLookup {
		defaults = append(defaults, netresolve.WithSRVLookup(true))
	}
	if opt.clampTTL >= 0 {
		defaults = append(defaults, netresolve.WithClampTTL(opt.clampTTL))
	} else if cfg.ClampTTL >= 0 {
		defaults = append(defaults, netresolve.WithClampTTL(cfg.ClampTTL))
	}
	if opt.requestTimeout > 0 {
		defaults = append(defaults, netresolve.WithTimeout(time.Duration(opt.requestTimeout)*time.Millisecond))
	} else if cfg.RequestTimeout > 0 {
		defaults = append(defaults, netresolve.WithTimeout(time.Duration(cfg.RequestTimeout)*time.Millisecond))
	}
	if opt.resultTimeout > 0 {
		defaults = append(defaults, netresolve.WithPartialTimeout(time.Duration(opt.resultTimeout)*time.Millisecond))
	} else if cfg.ResultTimeout > 0 {
		defaults = append(defaults, netresolve.WithPartialTimeout(time.Duration(cfg.ResultTimeout)*time.Millisecond))
	}
	ctx.SetOptions(defaults...)

	node := ""
	service := ""
	if len(args) > 0 {
		node = args[0]
	}
	if len(args) > 1 {
		service = args[1]
	}

	var queryOpts []netresolve.Option
	protocol := cfg.Protocol
	if opt.protocol != "" {
		protocol = opt.protocol
	}
	switch protocol {
	case "":
	case "tcp":
		queryOpts = append(queryOpts, netresolve.WithProtocol(netresolve.ProtocolTCP))
	case "udp":
		queryOpts = append(queryOpts, netresolve.WithProtocol(netresolve.ProtocolUDP))
	case "sctp":
		queryOpts = append(queryOpts, netresolve.WithProtocol(netresolve.ProtocolSCTP))
	default:
		return fmt.Errorf("unknown protocol: %s", protocol)
	}

	switch {
	case opt.dnsType != "":
		rrtype, ok := dns.StringToType[opt.dnsType]
		if !ok {
			return fmt.Errorf("unknown record type: %s", opt.dnsType)
		}
		if opt.search {
			queryOpts = append(queryOpts, netresolve.WithDNSSearch(true))
		}
		q, err := ctx.QueryDNS(node, dns.ClassINET, rrtype, nil, queryOpts...)
		if err != nil {
			return err
		}
		defer q.Free()
		if err := q.Wait(); err != nil {
			return err
		}
		msg := new(dns.Msg)
		if err := msg.Unpack(q.DNSAnswer()); err != nil {
			return err
		}
		fmt.Println(msg)
		return nil

	case opt.reverse:
		ip := net.ParseIP(node)
		if ip == nil {
			return fmt.Errorf("not an address: %s", node)
		}
		q, err := ctx.QueryReverse(ip, nil, queryOpts...)
		if err != nil {
			return err
		}
		defer q.Free()
		if err := q.Wait(); err != nil {
			return err
		}
		fmt.Print(q.ResponseString())
		return nil

	case opt.connect:
		sock, err := ctx.Connect(node, service, queryOpts...)
		if err != nil {
			return err
		}
		fmt.Printf("connected: fd=%d\n", sock)
		return nil

	default:
		q, err := ctx.QueryForward(node, service, nil, queryOpts...)
		if err != nil {
			return err
		}
		defer q.Free()
		err = q.Wait()
		if errors.Is(err, netresolve.ErrNoData) {
			return fmt.Errorf("no data for '%s'", node)
		}
		if err != nil {
			return err
		}
		fmt.Print(q.ResponseString())
		return nil
	}
}
